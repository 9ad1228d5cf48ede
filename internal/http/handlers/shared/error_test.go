package shared

import (
	"encoding/json"
	"testing"

	"github.com/adsboard-next/internal/authz"
)

func TestDenyPayloadKeepsFieldsWhenEmpty(t *testing.T) {
	cases := []*authz.DenyError{
		{Mode: authz.ModeSingle, Missing: []string{"campaigns_read"}, Denial: &authz.Denial{
			UserRole:           "Analyst",
			RequiredPermission: "campaigns_read",
			Action:             "read",
			Module:             "campaigns",
		}},
		{Mode: authz.ModeAll, Missing: []string{"users_create", "roles_read"}},
	}
	for _, deny := range cases {
		raw, err := json.Marshal(NewDenyPayload(deny))
		if err != nil {
			t.Fatalf("marshal payload failed: %v", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			t.Fatalf("unmarshal payload failed: %v", err)
		}
		for _, name := range []string{"mode", "user_role", "required_permission", "action", "module", "available_actions", "suggestion", "missing", "attempted"} {
			if _, ok := fields[name]; !ok {
				t.Fatalf("mode %s payload missing %s: %s", deny.Mode, name, raw)
			}
		}
		if string(fields["available_actions"]) != "[]" || string(fields["attempted"]) != "[]" {
			t.Fatalf("empty lists should encode as [], got %s", raw)
		}
	}
}
