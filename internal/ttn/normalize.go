// Package ttn bridges scalewatch to The Things Stack over MQTT.
// It owns the broker connection, parses uplink envelopes into canonical
// records, and encodes downlink commands back onto the broker.
package ttn

import "strconv"

// ExtractWeights normalizes an arbitrary decoded payload into an ordered
// list of weight readings. Firmware across deployments disagrees on the
// payload shape, so exactly one of these rules applies, first match wins:
//
//  1. "weights": explicit list — every element converted to a number
//  2. "channels": list of channel objects — each channel's "weight"
//     (or short "w") value, 0 when absent
//  3. "weight": single scalar reading
//  4. "mean"/"offset"/"scale": calibration triple — (mean-offset)*scale
//
// Anything else yields an empty list. Unknown shapes are never an error.
func ExtractWeights(decoded map[string]any) []float64 {
	if decoded == nil {
		return []float64{}
	}

	if list, ok := decoded["weights"].([]any); ok {
		out := make([]float64, len(list))
		for i, v := range list {
			out[i] = toNumber(v)
		}
		return out
	}

	if channels, ok := decoded["channels"].([]any); ok {
		out := make([]float64, len(channels))
		for i, c := range channels {
			ch, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if w, ok := ch["weight"]; ok {
				out[i] = toNumber(w)
			} else if w, ok := ch["w"]; ok {
				out[i] = toNumber(w)
			}
		}
		return out
	}

	if w, ok := decoded["weight"]; ok {
		return []float64{toNumber(w)}
	}

	mean, hasMean := decoded["mean"]
	offset, hasOffset := decoded["offset"]
	scale, hasScale := decoded["scale"]
	if hasMean && hasOffset && hasScale {
		return []float64{(toNumber(mean) - toNumber(offset)) * toNumber(scale)}
	}

	return []float64{}
}

// extractOptional pulls an optional numeric field from the decoded
// payload, accepting alternate key names for the same concept.
func extractOptional(decoded map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		if v, ok := decoded[k]; ok && v != nil {
			n := toNumber(v)
			return &n
		}
	}
	return nil
}

// toNumber converts a JSON-decoded value to float64. Decoders emit
// float64 for numbers; strings are parsed as a courtesy since some
// payload formatters stringify readings. Everything else is 0.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
