package newsletter

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fulmenhq/gofulmen/schema"
)

const (
	MaxBodyBytes = 5 * 1024

	minEmailLen = 5
	maxEmailLen = 254
)

var emailPattern = regexp.MustCompile("^[a-z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)*$")

// payloadSchema is the structural contract for a sign-up body: closed field
// set, types, lengths, tag count and the label charset.
//
//go:embed payload.schema.json
var payloadSchema []byte

// Optional fields in reporting order.
var optionalFieldOrder = []string{"source", "ref", "tags", "doubleOptIn"}

// jsonCheck reports whether a JSON document satisfies a compiled schema.
type jsonCheck func(raw []byte) (bool, error)

// fieldRule is the subset of a property schema used to phrase messages.
type fieldRule struct {
	MinLength int        `json:"minLength"`
	MaxLength int        `json:"maxLength"`
	MaxItems  int        `json:"maxItems"`
	Items     *fieldRule `json:"items"`
}

type payloadContract struct {
	body   jsonCheck
	fields map[string]jsonCheck
	rules  map[string]*fieldRule
	tag    jsonCheck
}

var loadPayloadContract = sync.OnceValues(func() (*payloadContract, error) {
	body, err := compileCheck(payloadSchema)
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	var doc struct {
		Schema     string                     `json:"$schema"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(payloadSchema, &doc); err != nil {
		return nil, fmt.Errorf("decode payload schema: %w", err)
	}

	contract := &payloadContract{
		body:   body,
		fields: make(map[string]jsonCheck, len(doc.Properties)),
		rules:  make(map[string]*fieldRule, len(doc.Properties)),
	}
	for name, property := range doc.Properties {
		// Each property is also compiled alone so a failure can be pinned to
		// the field that caused it.
		check, err := compileCheck(mustJSON(map[string]any{
			"$schema":    doc.Schema,
			"type":       "object",
			"properties": map[string]json.RawMessage{name: property},
		}))
		if err != nil {
			return nil, fmt.Errorf("compile payload schema %s: %w", name, err)
		}
		contract.fields[name] = check

		rule := &fieldRule{}
		if err := json.Unmarshal(property, rule); err != nil {
			return nil, fmt.Errorf("decode payload schema %s: %w", name, err)
		}
		contract.rules[name] = rule
	}

	var tags struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(doc.Properties["tags"], &tags); err != nil || len(tags.Items) == 0 {
		return nil, fmt.Errorf("payload schema: tags.items missing")
	}
	if contract.tag, err = compileCheck(withDialect(tags.Items, doc.Schema)); err != nil {
		return nil, fmt.Errorf("compile payload schema tags.items: %w", err)
	}

	return contract, nil
})

func compileCheck(schemaBytes []byte) (jsonCheck, error) {
	validator, err := schema.NewValidator(schemaBytes)
	if err != nil {
		return nil, err
	}
	return func(raw []byte) (bool, error) {
		diagnostics, err := validator.ValidateJSON(raw)
		if err != nil {
			return false, err
		}
		return len(diagnostics) == 0, nil
	}, nil
}

func withDialect(fragment json.RawMessage, dialect string) []byte {
	var doc map[string]any
	if err := json.Unmarshal(fragment, &doc); err != nil || doc == nil {
		return fragment
	}
	if dialect != "" {
		doc["$schema"] = dialect
	}
	return mustJSON(doc)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// CheckContentType accepts any media type starting with application/json,
// case-insensitively (parameters such as charset are allowed).
func CheckContentType(contentType string) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json") {
		return validationError("Content-Type must be application/json")
	}
	return nil
}

// ParsePayload validates a raw JSON body and returns the normalized submission.
// The first failing rule wins; all failures are KindValidation errors.
func ParsePayload(raw []byte) (Submission, error) {
	if len(raw) > MaxBodyBytes {
		return Submission{}, validationError("Request body too large")
	}
	if !json.Valid(raw) {
		return Submission{}, validationError("Invalid JSON")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Submission{}, validationError("Body must be a JSON object")
	}

	contract, err := loadPayloadContract()
	if err != nil {
		return Submission{}, &Error{Kind: KindInternal, Message: "payload schema unavailable", Err: err}
	}

	if ok, err := contract.body(raw); err != nil || !ok {
		return Submission{}, contract.describe(fields)
	}

	var body struct {
		Email       string   `json:"email"`
		Source      string   `json:"source"`
		Ref         string   `json:"ref"`
		Tags        []string `json:"tags"`
		DoubleOptIn *bool    `json:"doubleOptIn"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Submission{}, validationError("Invalid JSON")
	}

	email, verr := normalizeEmail(body.Email)
	if verr != nil {
		return Submission{}, verr
	}

	return Submission{
		Request: Request{
			Email:       email,
			Source:      body.Source,
			Ref:         body.Ref,
			Tags:        body.Tags,
			DoubleOptIn: body.DoubleOptIn,
		},
		HoneypotHit: honeypotFilled(fields["company"]) || honeypotFilled(fields["hp"]),
	}, nil
}

// normalizeEmail trims and lower-cases the address, then checks its length
// in characters and its shape.
func normalizeEmail(value string) (string, *Error) {
	email := strings.ToLower(strings.TrimSpace(value))
	if n := utf8.RuneCountInString(email); n < minEmailLen || n > maxEmailLen || !emailPattern.MatchString(email) {
		return "", validationError("Invalid email")
	}
	return email, nil
}

// describe names the first rule a rejected body breaks. Unknown keys are
// reported in sorted order, then email, then optional fields.
func (c *payloadContract) describe(fields map[string]json.RawMessage) *Error {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := c.fields[key]; !ok {
			return validationError("Unknown field: " + key)
		}
	}

	emailRaw, present := fields["email"]
	if !present || !c.fieldValid("email", emailRaw) {
		return validationError("email is required")
	}
	var email string
	if err := json.Unmarshal(emailRaw, &email); err == nil {
		if _, verr := normalizeEmail(email); verr != nil {
			return verr
		}
	}

	for _, name := range optionalFieldOrder {
		raw, present := fields[name]
		if !present || c.fieldValid(name, raw) {
			continue
		}
		return c.describeField(name, raw)
	}

	return validationError("Invalid request body")
}

func (c *payloadContract) fieldValid(name string, raw json.RawMessage) bool {
	check, ok := c.fields[name]
	if !ok {
		return false
	}
	valid, err := check(mustJSON(map[string]json.RawMessage{name: raw}))
	return err == nil && valid
}

func (c *payloadContract) describeField(name string, raw json.RawMessage) *Error {
	rule := c.rules[name]
	switch name {
	case "tags":
		var items []json.RawMessage
		if !isJSONArray(raw) || json.Unmarshal(raw, &items) != nil {
			return validationError("tags must be an array")
		}
		if rule.MaxItems > 0 && len(items) > rule.MaxItems {
			return validationError("too many tags")
		}
		return c.describeTags(rule.Items, items)
	case "doubleOptIn":
		return validationError("doubleOptIn must be boolean")
	default:
		var value string
		if !isJSONString(raw) || json.Unmarshal(raw, &value) != nil {
			return validationError(name + " must be a string")
		}
		if rule.MaxLength > 0 && utf8.RuneCountInString(value) > rule.MaxLength {
			return validationError(name + " too long")
		}
		return validationError(name + " has invalid characters")
	}
}

// describeTags phrases the failure of the first tag the item schema rejects.
func (c *payloadContract) describeTags(rule *fieldRule, items []json.RawMessage) *Error {
	for _, item := range items {
		if valid, err := c.tag(item); err == nil && valid {
			continue
		}
		var tag string
		if !isJSONString(item) || json.Unmarshal(item, &tag) != nil {
			return validationError("invalid tag")
		}
		if rule != nil {
			if n := utf8.RuneCountInString(tag); n < rule.MinLength || (rule.MaxLength > 0 && n > rule.MaxLength) {
				return validationError("tag length out of bounds")
			}
		}
		return validationError("tag has invalid characters")
	}
	return validationError("invalid tag")
}

func honeypotFilled(raw json.RawMessage) bool {
	var value string
	if !isJSONString(raw) || json.Unmarshal(raw, &value) != nil {
		return false
	}
	return strings.TrimSpace(value) != ""
}

func isJSONString(raw json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), `"`)
}

func isJSONArray(raw json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "[")
}
