package ttn

import "encoding/json"

// Wire schema for The Things Stack v3 MQTT integration. Only the fields
// scalewatch consumes are declared; everything else in the envelope is
// ignored by the decoder.

// uplinkEnvelope is the inbound message published on
// v3/{app}@{tenant}/devices/+/up.
type uplinkEnvelope struct {
	EndDeviceIDs struct {
		DeviceID string `json:"device_id"`
	} `json:"end_device_ids"`
	UplinkMessage struct {
		ReceivedAt     string          `json:"received_at"`
		DecodedPayload json.RawMessage `json:"decoded_payload"`
		RxMetadata     []struct {
			RSSI *float64 `json:"rssi"`
			SNR  *float64 `json:"snr"`
		} `json:"rx_metadata"`
	} `json:"uplink_message"`
}

// downlinkEnvelope is the outbound message published on
// v3/{app}@{tenant}/devices/{id}/down/push.
type downlinkEnvelope struct {
	Downlinks []downlinkItem `json:"downlinks"`
}

type downlinkItem struct {
	FPort      int    `json:"f_port"`
	FrmPayload string `json:"frm_payload"` // base64
	Priority   string `json:"priority"`
	Confirmed  bool   `json:"confirmed"`
}

const downlinkPriority = "NORMAL"
