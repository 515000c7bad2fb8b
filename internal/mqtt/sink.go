package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"

	"battery-dispatch/internal/model"
)

// WriteValue publishes a named scalar, retrying across an ordered set of
// alternate representations. The first accepted representation wins; a
// failed candidate leaves no partial side effect (a rejected publish writes
// nothing). All-candidates-failed is logged and returned, but callers treat
// it as non-fatal.
func (c *Client) WriteValue(name string, value any) error {
	var lastErr error
	for _, payload := range encodeCandidates(value) {
		token := c.client.Publish(c.topic(name), 1, true, payload)
		if token.Wait() && token.Error() != nil {
			lastErr = token.Error()
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no encodable representation for %T", value)
	}
	c.log.WithError(lastErr).WithField("name", name).Warn("sink write failed")
	return fmt.Errorf("write %s: %w", name, lastErr)
}

// WriteForecast publishes a forecast document as retained JSON.
func (c *Client) WriteForecast(name string, plan model.Plan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode forecast %s: %w", name, err)
	}
	token := c.client.Publish(c.topic(name), 1, true, payload)
	if token.Wait() && token.Error() != nil {
		c.log.WithError(token.Error()).WithField("name", name).Warn("forecast write failed")
		return fmt.Errorf("write forecast %s: %w", name, token.Error())
	}
	return nil
}

// encodeCandidates builds the ordered representations for a value:
// the plain form first, then a string form, then a JSON envelope.
func encodeCandidates(value any) [][]byte {
	switch v := value.(type) {
	case float64:
		plain := strconv.FormatFloat(v, 'f', -1, 64)
		return [][]byte{
			[]byte(plain),
			[]byte(strconv.FormatFloat(v, 'f', 3, 64)),
			jsonEnvelope(v),
		}
	case int:
		return [][]byte{
			[]byte(strconv.Itoa(v)),
			jsonEnvelope(v),
		}
	case bool:
		num := "0"
		if v {
			num = "1"
		}
		return [][]byte{
			[]byte(num),
			[]byte(strconv.FormatBool(v)),
			jsonEnvelope(v),
		}
	case string:
		return [][]byte{
			[]byte(v),
			jsonEnvelope(v),
		}
	default:
		if b, err := json.Marshal(v); err == nil {
			return [][]byte{b}
		}
		return nil
	}
}

func jsonEnvelope(v any) []byte {
	b, _ := json.Marshal(map[string]any{"value": v})
	return b
}
