package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "shpat_super-secret-token-12345"

func TestSecretString_String(t *testing.T) {
	s := SecretString(testSecret)

	result := s.String()

	if result != redactedPlaceholder {
		t.Errorf("String() = %q, want %q", result, redactedPlaceholder)
	}
	if strings.Contains(result, testSecret) {
		t.Errorf("String() leaked the raw secret value")
	}
}

func TestSecretString_Sprintf(t *testing.T) {
	s := SecretString(testSecret)

	// Both %s and %v route through the Stringer interface.
	for _, verb := range []string{"%s", "%v", "%+v"} {
		result := fmt.Sprintf("key="+verb, s)
		if strings.Contains(result, testSecret) {
			t.Errorf("fmt.Sprintf(%s) leaked the raw secret: %s", verb, result)
		}
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	type providerConfig struct {
		APIKey SecretString `json:"api_key"`
		From   string       `json:"from"`
	}

	cfg := providerConfig{
		APIKey: SecretString(testSecret),
		From:   "alerts@example.com",
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}

	result := string(data)
	if strings.Contains(result, testSecret) {
		t.Errorf("json.Marshal leaked the raw secret: %s", result)
	}
	if !strings.Contains(result, redactedPlaceholder) {
		t.Errorf("json.Marshal did not contain redacted placeholder: %s", result)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)

	if got := s.Unmask(); got != testSecret {
		t.Errorf("Unmask() = %q, want %q", got, testSecret)
	}
}

func TestSecretString_IsSet(t *testing.T) {
	if SecretString("").IsSet() {
		t.Error("IsSet() on empty SecretString = true, want false")
	}
	if !SecretString("x").IsSet() {
		t.Error("IsSet() on non-empty SecretString = false, want true")
	}
}
