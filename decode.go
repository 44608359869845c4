package fragments

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-fragments/internal/hydrate"
)

// Snapshotter is implemented by records and fragments.
type Snapshotter interface {
	ModelName() string
	Snapshot() (map[string]any, error)
}

// DecodeOption configures Decode.
type DecodeOption func(*decodeConfig)

type decodeConfig struct {
	strict    bool
	useNumber bool
	validate  *validator.Validate
}

// DecodeStrict rejects snapshot keys without a matching struct field.
func DecodeStrict() DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.strict = true
	}
}

// DecodeUseNumber keeps numbers as json.Number.
func DecodeUseNumber() DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.useNumber = true
	}
}

// DecodeValidate runs validate.Struct on the decoded value.
func DecodeValidate(validate *validator.Validate) DecodeOption {
	return func(cfg *decodeConfig) {
		cfg.validate = validate
	}
}

// Decode renders source's live values into a T using its json tags.
func Decode[T any](source Snapshotter, opts ...DecodeOption) (T, error) {
	var zero T
	if source == nil {
		return zero, fmt.Errorf("%w: nothing to decode", ErrInvalidTarget)
	}
	cfg := decodeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	snapshot, err := source.Snapshot()
	if err != nil {
		return zero, err
	}

	var decoderOpts []hydrate.DecoderOption[T]
	if cfg.strict {
		decoderOpts = append(decoderOpts, hydrate.WithDisallowUnknownFields[T]())
	}
	if cfg.useNumber {
		decoderOpts = append(decoderOpts, hydrate.WithUseNumber[T]())
	}
	if cfg.validate != nil {
		decoderOpts = append(decoderOpts, hydrate.WithValidator[T](cfg.validate))
	}

	ctx := hydrate.Context{Model: source.ModelName()}
	if fragment, ok := source.(*Fragment); ok {
		ctx.Key = fragment.OwnerKey()
	}
	return hydrate.NewDecoder[T](decoderOpts...).Decode(ctx, snapshot)
}
