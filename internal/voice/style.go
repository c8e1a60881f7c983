package voice

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Superstone-han/supertonic-v2/internal/inference"
	"github.com/Superstone-han/supertonic-v2/internal/tensor"
)

// Style is the conditioning for one voice: the duration vector (style_dp)
// and the encoding vector (style_ttl).
type Style = inference.Style

type styleFile struct {
	StyleTTL *styleTensor `json:"style_ttl"`
	StyleDP  *styleTensor `json:"style_dp"`
}

type styleTensor struct {
	Data json.RawMessage `json:"data"`
	Dims []int           `json:"dims"`
	Type string          `json:"type"`
}

// ParseStyle decodes a voice style document. Malformed documents yield an
// *inference.AssetError naming the voice.
func ParseStyle(id string, data []byte) (Style, error) {
	var raw styleFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Style{}, styleError(id, fmt.Errorf("decode style: %w", err))
	}
	if raw.StyleTTL == nil || raw.StyleDP == nil {
		return Style{}, styleError(id, errors.New("style_ttl and style_dp are required"))
	}
	encoding, err := raw.StyleTTL.tensor()
	if err != nil {
		return Style{}, styleError(id, fmt.Errorf("style_ttl: %w", err))
	}
	duration, err := raw.StyleDP.tensor()
	if err != nil {
		return Style{}, styleError(id, fmt.Errorf("style_dp: %w", err))
	}
	return Style{Duration: duration, Encoding: encoding}, nil
}

func (s *styleTensor) tensor() (tensor.Tensor[float32], error) {
	if s.Type != "" && s.Type != "float32" {
		return tensor.Tensor[float32]{}, fmt.Errorf("unsupported type %q", s.Type)
	}
	if len(s.Dims) == 0 {
		return tensor.Tensor[float32]{}, errors.New("dims missing")
	}
	for _, d := range s.Dims {
		if d <= 0 {
			return tensor.Tensor[float32]{}, fmt.Errorf("invalid dims %v", s.Dims)
		}
	}
	var nested any
	if err := json.Unmarshal(s.Data, &nested); err != nil {
		return tensor.Tensor[float32]{}, fmt.Errorf("decode data: %w", err)
	}
	flat := make([]float32, 0, tensor.Volume(s.Dims))
	flat, err := flatten(flat, nested)
	if err != nil {
		return tensor.Tensor[float32]{}, err
	}
	return tensor.FromData(flat, s.Dims...)
}

func flatten(dst []float32, v any) ([]float32, error) {
	switch x := v.(type) {
	case float64:
		return append(dst, float32(x)), nil
	case []any:
		var err error
		for _, item := range x {
			if dst, err = flatten(dst, item); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unexpected value %T in data", v)
	}
}

func styleError(id string, err error) error {
	return &inference.AssetError{Asset: "voice_style/" + id, Err: err}
}
