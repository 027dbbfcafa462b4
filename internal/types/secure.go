package types

// redactedPlaceholder replaces secret values in logs and serialized output.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive value (provider API keys, store access
// tokens, connection strings) and prevents it from leaking through fmt
// functions or JSON output. Both String() and MarshalJSON() return a
// redacted placeholder.
//
// Call Unmask() at the single point where the plaintext is genuinely needed,
// such as building an Authorization header or opening a database pool.
type SecretString string

// String returns a redacted placeholder instead of the raw value. Invoked by
// fmt.Sprintf, fmt.Println, and anything else using fmt.Stringer.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string so secrets
// never appear in config dumps, ops responses, or structured log entries.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// IsSet reports whether a value is present. Optional provider credentials
// (Slack, Twilio, narrative) use this to decide whether a channel is wired.
func (s SecretString) IsSet() bool {
	return s != ""
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}
