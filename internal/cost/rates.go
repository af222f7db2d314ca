package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadRatesFile reads a per-model price table from a yaml file. Models absent
// from the file fall back to the defaults, so a rates file only needs to list
// overrides.
func LoadRatesFile(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "cost: read rates file %s", path)
	}

	var loaded Rates
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Rates{}, eris.Wrapf(err, "cost: parse rates file %s", path)
	}

	rates := DefaultRates()
	for id, rate := range loaded.Models {
		rates.Models[id] = rate
	}
	return rates, nil
}
