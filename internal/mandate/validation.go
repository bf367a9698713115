// internal/mandate/validation.go
package mandate

import (
	"fmt"
	"regexp"
	"strings"

	"flowcoach/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// slugPattern matches the backend's product slug rule.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// applyCardSchema validates the apply_card intent payload before a create
// call is attempted. Extra fields are allowed; the payload is otherwise
// opaque to the workflow.
const applyCardSchema = `{
	"type": "object",
	"required": ["intent", "product_slug"],
	"properties": {
		"intent": {"type": "string", "enum": ["apply_card"]},
		"product_slug": {"type": "string", "minLength": 1},
		"product_name": {"type": "string"},
		"issuer": {"type": "string"}
	}
}`

var applyCardSchemaLoader = gojsonschema.NewStringLoader(applyCardSchema)

// ValidateSlug checks a product slug against the backend's slug rule.
func ValidateSlug(slug string) error {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return errors.NewMissingProductSlugError("")
	}
	if !slugPattern.MatchString(slug) {
		return errors.NewInvalidProductSlugError(slug)
	}
	return nil
}

// ValidateApplyCardData validates an apply_card intent payload. Payloads for
// other intents pass through untouched; forward compatibility keeps unknown
// intents opaque.
func ValidateApplyCardData(data map[string]interface{}) error {
	if len(data) == 0 {
		return errors.NewInvalidIntentDataError("mandate data must be a non-empty object")
	}

	if intent, _ := data["intent"].(string); intent != IntentApplyCard {
		return nil
	}

	result, err := gojsonschema.Validate(applyCardSchemaLoader, gojsonschema.NewGoLoader(data))
	if err != nil {
		return errors.NewInvalidIntentDataError(err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.NewInvalidIntentDataError(fmt.Sprintf("apply_card payload: %s", strings.Join(details, "; ")))
	}

	if slug, _ := data["product_slug"].(string); slug != "" {
		if err := ValidateSlug(slug); err != nil {
			return err
		}
	}

	return nil
}
