package inference

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/unicode/norm"

	"roastmachine/internal/services"
	"roastmachine/internal/services/llm"
)

//go:embed song_match.schema.json
var songMatchSchemaJSON string

var songMatchSchema = mustCompileSchema(songMatchSchemaJSON, "song_match.schema.json")

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

type songMatchPayload struct {
	DetectedSong string  `json:"detectedSong"`
	Confidence   float64 `json:"confidence"`
	Accuracy     float64 `json:"accuracy"`
}

// ParseSongMatch turns a raw model response into a SongMatch. The response is
// validated as-is first; when that fails the object is recovered from code
// fences or surrounding prose the same way the LLM client does. Numbers may
// arrive as strings. Errors are wrapped in services.ErrUpstream.
func ParseSongMatch(raw string) (SongMatch, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SongMatch{}, upstream("parse song match", "empty response", nil)
	}

	doc, err := validateSongMatch(trimmed)
	if err != nil {
		fragment, extractErr := llm.JSONPayload(trimmed)
		if extractErr != nil || fragment == trimmed {
			return SongMatch{}, upstream("parse song match", "no usable json object", err)
		}
		doc, err = validateSongMatch(fragment)
		if err != nil {
			return SongMatch{}, upstream("parse song match", "embedded object rejected", err)
		}
	}

	var payload songMatchPayload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           &payload,
	})
	if err != nil {
		return SongMatch{}, upstream("parse song match", "build decoder", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return SongMatch{}, upstream("parse song match", "decode fields", err)
	}

	song := NormalizeSongTitle(payload.DetectedSong)
	if song == "" {
		return SongMatch{}, upstream("parse song match", "detectedSong is blank", nil)
	}
	return SongMatch{
		DetectedSong: song,
		Confidence:   Clamp01(payload.Confidence),
		Accuracy:     Clamp01(payload.Accuracy),
	}, nil
}

func validateSongMatch(candidate string) (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := songMatchSchema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("schema: %s", flattenValidationError(verr))
		}
		return nil, err
	}
	return doc, nil
}

func flattenValidationError(verr *jsonschema.ValidationError) string {
	if len(verr.Causes) == 0 {
		location := "/" + strings.Join(verr.InstanceLocation, "/")
		return location + ": " + verr.Error()
	}
	parts := make([]string, 0, len(verr.Causes))
	for _, cause := range verr.Causes {
		parts = append(parts, flattenValidationError(cause))
	}
	return strings.Join(parts, "; ")
}

// NormalizeSongTitle applies NFC normalization and collapses whitespace so the
// same title always maps to the same session key.
func NormalizeSongTitle(title string) string {
	return strings.Join(strings.Fields(norm.NFC.String(title)), " ")
}

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func upstream(operation, message string, err error) error {
	return services.Wrap(services.ErrUpstream, "inference", operation, message, err)
}
