package newsletter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireValidation(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	var nerr *Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, KindValidation, nerr.Kind)
	assert.Equal(t, message, nerr.Message)
}

func TestParsePayloadNormalizesEmail(t *testing.T) {
	sub, err := ParsePayload([]byte(`{"email":"  Foo.Bar@Example.COM "}`))
	require.NoError(t, err)
	assert.Equal(t, "foo.bar@example.com", sub.Email)
	assert.Empty(t, sub.Source)
	assert.Empty(t, sub.Ref)
	assert.Nil(t, sub.Tags)
	assert.Nil(t, sub.DoubleOptIn)
	assert.False(t, sub.HoneypotHit)
}

func TestParsePayloadKeepsOptionalFields(t *testing.T) {
	sub, err := ParsePayload([]byte(`{"email":"a@b.co","source":"footer/v2","ref":"launch_2025","tags":["news","beta-1"],"doubleOptIn":true}`))
	require.NoError(t, err)
	assert.Equal(t, "footer/v2", sub.Source)
	assert.Equal(t, "launch_2025", sub.Ref)
	assert.Equal(t, []string{"news", "beta-1"}, sub.Tags)
	require.NotNil(t, sub.DoubleOptIn)
	assert.True(t, *sub.DoubleOptIn)
	assert.True(t, sub.WantsDoubleOptIn())
}

func TestParsePayloadEmptyTagsArray(t *testing.T) {
	sub, err := ParsePayload([]byte(`{"email":"a@b.co","tags":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, sub.Tags)
	assert.Empty(t, sub.Tags)
}

func TestParsePayloadRejections(t *testing.T) {
	tooManyTags := `["a","b","c","d","e","f","g","h","i","j","k"]`

	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{"email":`, "Invalid JSON"},
		{"empty body", ``, "Invalid JSON"},
		{"array body", `["a@b.co"]`, "Body must be a JSON object"},
		{"null body", `null`, "Body must be a JSON object"},
		{"string body", `"a@b.co"`, "Body must be a JSON object"},
		{"unknown field", `{"email":"a@b.co","name":"x"}`, "Unknown field: name"},
		{"unknown fields sorted", `{"zeta":1,"alpha":2,"email":"a@b.co"}`, "Unknown field: alpha"},
		{"missing email", `{"source":"x"}`, "email is required"},
		{"email not string", `{"email":42}`, "email is required"},
		{"email null", `{"email":null}`, "email is required"},
		{"email too short", `{"email":"a@b"}`, "Invalid email"},
		{"email bad pattern", `{"email":"not-an-email"}`, "Invalid email"},
		{"email too long", `{"email":"` + strings.Repeat("a", 250) + `@b.co"}`, "Invalid email"},
		{"source not string", `{"email":"a@b.co","source":1}`, "source must be a string"},
		{"source null", `{"email":"a@b.co","source":null}`, "source must be a string"},
		{"source too long", `{"email":"a@b.co","source":"` + strings.Repeat("s", 65) + `"}`, "source too long"},
		{"source charset", `{"email":"a@b.co","source":"has space"}`, "source has invalid characters"},
		{"source empty", `{"email":"a@b.co","source":""}`, "source has invalid characters"},
		{"ref not string", `{"email":"a@b.co","ref":false}`, "ref must be a string"},
		{"ref too long", `{"email":"a@b.co","ref":"` + strings.Repeat("r", 129) + `"}`, "ref too long"},
		{"ref charset", `{"email":"a@b.co","ref":"x?y"}`, "ref has invalid characters"},
		{"tags not array", `{"email":"a@b.co","tags":"news"}`, "tags must be an array"},
		{"too many tags", `{"email":"a@b.co","tags":` + tooManyTags + `}`, "too many tags"},
		{"tag not string", `{"email":"a@b.co","tags":[1]}`, "invalid tag"},
		{"tag empty", `{"email":"a@b.co","tags":[""]}`, "tag length out of bounds"},
		{"tag too long", `{"email":"a@b.co","tags":["` + strings.Repeat("t", 33) + `"]}`, "tag length out of bounds"},
		{"tag charset", `{"email":"a@b.co","tags":["a b"]}`, "tag has invalid characters"},
		{"double opt in string", `{"email":"a@b.co","doubleOptIn":"yes"}`, "doubleOptIn must be boolean"},
		{"double opt in null", `{"email":"a@b.co","doubleOptIn":null}`, "doubleOptIn must be boolean"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tc.body))
			requireValidation(t, err, tc.message)
		})
	}
}

func TestParsePayloadBoundaryLengths(t *testing.T) {
	_, err := ParsePayload([]byte(`{"email":"a@b.co","source":"` + strings.Repeat("s", 64) + `","ref":"` + strings.Repeat("r", 128) + `","tags":["` + strings.Repeat("t", 32) + `"]}`))
	require.NoError(t, err)

	_, err = ParsePayload([]byte(`{"email":"a@b.c"}`))
	require.NoError(t, err, "five character address is allowed")
}

func TestParsePayloadBodyLimit(t *testing.T) {
	padding := strings.Repeat("x", MaxBodyBytes)
	_, err := ParsePayload([]byte(`{"email":"a@b.co","ref":"` + padding + `"}`))
	requireValidation(t, err, "Request body too large")
}

func TestParsePayloadHoneypot(t *testing.T) {
	cases := []struct {
		name string
		body string
		hit  bool
	}{
		{"company filled", `{"email":"a@b.co","company":"Acme"}`, true},
		{"hp filled", `{"email":"a@b.co","hp":"x"}`, true},
		{"whitespace only", `{"email":"a@b.co","company":"   ","hp":"\t"}`, false},
		{"non-string trap", `{"email":"a@b.co","company":123,"hp":true}`, false},
		{"absent", `{"email":"a@b.co"}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, err := ParsePayload([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.hit, sub.HoneypotHit)
		})
	}
}

func TestParsePayloadValidatesBeforeHoneypot(t *testing.T) {
	_, err := ParsePayload([]byte(`{"email":"bad","company":"Acme"}`))
	requireValidation(t, err, "Invalid email")
}

func TestCheckContentType(t *testing.T) {
	require.NoError(t, CheckContentType("application/json"))
	require.NoError(t, CheckContentType("Application/JSON; charset=utf-8"))

	requireValidation(t, CheckContentType(""), "Content-Type must be application/json")
	requireValidation(t, CheckContentType("text/plain"), "Content-Type must be application/json")
}

func TestPayloadContractCompiles(t *testing.T) {
	contract, err := loadPayloadContract()
	require.NoError(t, err)

	names := make([]string, 0, len(contract.fields))
	for name := range contract.fields {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"email", "source", "ref", "tags", "doubleOptIn", "company", "hp"}, names)
	assert.Equal(t, 10, contract.rules["tags"].MaxItems)
	assert.Equal(t, 64, contract.rules["source"].MaxLength)
	assert.Equal(t, 128, contract.rules["ref"].MaxLength)
	require.NotNil(t, contract.rules["tags"].Items)
	assert.Equal(t, 32, contract.rules["tags"].Items.MaxLength)
}

func TestPayloadSchemaDecides(t *testing.T) {
	contract, err := loadPayloadContract()
	require.NoError(t, err)

	cases := []struct {
		body  string
		valid bool
	}{
		{`{"email":"a@b.co","tags":["ok"],"company":"Acme"}`, true},
		{`{"email":"a@b.co","company":{"nested":true},"hp":[1]}`, true},
		{`{"email":"a@b.co","foo":"bar"}`, false},
		{`{"email":"a@b.co","tags":["a","b","c","d","e","f","g","h","i","j","k"]}`, false},
		{`{"email":"a@b.co","source":"bad char"}`, false},
		{`{"email":"a@b.co","doubleOptIn":"yes"}`, false},
		{`{"source":"x"}`, false},
	}

	for _, tc := range cases {
		ok, err := contract.body([]byte(tc.body))
		require.NoError(t, err, tc.body)
		assert.Equal(t, tc.valid, ok, tc.body)
	}
}

func TestParsePayloadReportsFirstBrokenRule(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"unknown field beats honeypot", `{"email":"a@b.co","foo":"bar","company":"Acme"}`, "Unknown field: foo"},
		{"email before optional fields", `{"email":"nope","source":"bad char"}`, "Invalid email"},
		{"source before tags", `{"email":"a@b.co","source":"bad char","tags":[1]}`, "source has invalid characters"},
		{"tags null", `{"email":"a@b.co","tags":null}`, "tags must be an array"},
		{"first bad tag wins", `{"email":"a@b.co","tags":["ok","","a b"]}`, "tag length out of bounds"},
		{"source length counts characters", `{"email":"a@b.co","source":"` + strings.Repeat("é", 65) + `"}`, "source too long"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tc.body))
			requireValidation(t, err, tc.message)
		})
	}
}
