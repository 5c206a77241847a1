// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"encoding/json"
	"testing"
)

func TestVariable(t *testing.T) {
	t.Run("zero value is unset", func(t *testing.T) {
		var v VarFloat64
		if v.IsSet() {
			t.Error("expected zero value to be unset")
		}
		if v.String() != Unknown {
			t.Errorf("expected string to be %q, got %q", Unknown, v.String())
		}
		if v.ValueOr(42) != 42 {
			t.Errorf("expected fallback value, got %f", v.ValueOr(42))
		}
	})
	t.Run("set, read and reset", func(t *testing.T) {
		v := NewVariable(12.5)
		if !v.IsSet() || v.Value() != 12.5 {
			t.Fatalf("expected value 12.5 to be set, got %v", v)
		}
		if v.String() != "12.5" {
			t.Errorf("expected string to be 12.5, got %s", v.String())
		}
		v.Reset()
		if v.IsSet() || v.Value() != 0 {
			t.Error("expected value to be reset")
		}
	})
}

func TestVariable_JSON(t *testing.T) {
	type payload struct {
		Speed   VarFloat64 `json:"speed"`
		Heading VarFloat64 `json:"heading"`
	}

	t.Run("unset values encode as null", func(t *testing.T) {
		data, err := json.Marshal(payload{Speed: NewVariable(3.5)})
		if err != nil {
			t.Fatalf("failed to marshal payload: %s", err)
		}
		if string(data) != `{"speed":3.5,"heading":null}` {
			t.Errorf("unexpected JSON: %s", data)
		}
	})
	t.Run("null decodes into an unset value", func(t *testing.T) {
		var p payload
		if err := json.Unmarshal([]byte(`{"speed":null,"heading":270}`), &p); err != nil {
			t.Fatalf("failed to unmarshal payload: %s", err)
		}
		if p.Speed.IsSet() {
			t.Error("expected speed to be unset")
		}
		if !p.Heading.IsSet() || p.Heading.Value() != 270 {
			t.Errorf("expected heading to be 270, got %s", p.Heading)
		}
	})
	t.Run("invalid JSON fails", func(t *testing.T) {
		var p payload
		if err := json.Unmarshal([]byte(`{"speed":"fast"}`), &p); err == nil {
			t.Error("expected unmarshal to fail")
		}
	})
}
