package plugin

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/dsmark/internal/core"
)

// DecodeConfig decodes a plugin's raw config map into out, a pointer to a
// struct with mapstructure tags. Unknown keys are rejected; numbers given as
// strings and durations like "500ms" are accepted.
func DecodeConfig(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
