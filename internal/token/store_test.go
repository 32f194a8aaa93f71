package token

import "testing"

func TestStore_SetGetClear(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get(); ok {
		t.Fatal("expected empty store")
	}

	s.Set("abc123")
	tok, ok := s.Get()
	if !ok || tok != "abc123" {
		t.Fatalf("expected abc123, got %q ok=%v", tok, ok)
	}

	s.Clear()
	if _, ok := s.Get(); ok {
		t.Fatal("expected cleared store")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`abc123`, `abc123`},
		{`Bearer abc123`, `abc123`},
		{`bearer abc123`, `abc123`},
		{`BEARER   abc123`, `abc123`},
		{`"abc123"`, `abc123`},
		{`'abc123'`, `abc123`},
		{`Bearer "abc123"`, `abc123`},
		{`  Bearer "abc123"  `, `abc123`},
		{``, ``},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	once := Normalize(`Bearer "abc123"`)
	if twice := Normalize(once); twice != once {
		t.Fatalf("normalizing a normalized token changed it: %q -> %q", once, twice)
	}
}
