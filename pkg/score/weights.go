package score

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// weightsFile is the on-disk shape for weight overrides. Only fields present
// in the file override the defaults, so a deployment can retune a single rule
// without restating the whole table.
type weightsFile struct {
	Weights map[string]int `yaml:"weights"`
}

// LoadWeights reads weight overrides from a YAML file and applies them on top
// of DefaultWeights. Unknown keys are rejected so typos fail loudly.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read weights file: %w", err)
	}

	var wf weightsFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return w, fmt.Errorf("parse weights file: %w", err)
	}

	for key, val := range wf.Weights {
		switch key {
		case "secret_request":
			w.SecretRequest = val
		case "secret_warning":
			w.SecretWarning = val
		case "click_link":
			w.ClickLink = val
		case "payment_request":
			w.PaymentRequest = val
		case "urgency_word":
			w.UrgencyWord = val
		case "url_present":
			w.URLPresent = val
		case "phone_present":
			w.PhonePresent = val
		case "handle_present":
			w.HandlePresent = val
		case "numeric_id_token":
			w.NumericIDToken = val
		default:
			return DefaultWeights(), fmt.Errorf("unknown weight key %q", key)
		}
	}
	return w, nil
}
