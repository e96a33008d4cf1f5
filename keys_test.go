package kvdoc

import "testing"

func TestBuildKey(t *testing.T) {
	deepEqual(t, BuildKey("users", true, "", "42"), "TBL:users-42")
	deepEqual(t, BuildKey("users", true, "email", "42"), "TBL:users-42")
	deepEqual(t, BuildKey("users", false, "", "42"), "TBL:users-42")
	deepEqual(t, BuildKey("users", false, "email", "a@b"), "TBL:users-PTR:email-a@b")
	deepEqual(t, BuildKey("users", false, "email", ""), "TBL:users-PTR:email-")
	deepEqual(t, fieldPartitionPrefix("users"), "TBL:users-PTR:")
}

func TestPointerEnvelope(t *testing.T) {
	s := EncodePointer("TBL:users-1")
	deepEqual(t, s, `{"isPointer":true,"target":"TBL:users-1"}`)

	o := func(raw string, target string, ok bool) {
		t.Helper()
		a, aok := ParsePointer(raw)
		if a != target || aok != ok {
			t.Errorf("** ParsePointer(%q) = %q, %v, wanted %q, %v", raw, a, aok, target, ok)
		}
	}
	o(s, "TBL:users-1", true)
	o(`{"isPointer":true,"target":""}`, "", false)
	o(`{"isPointer":true,"target":"x","extra":1}`, "", false)
	o(`{"isPointer":true,"target":7}`, "", false)
	o(`{"isPointer":false,"target":"x"}`, "", false)
	o(`TBL:users-1`, "", false)
	o(`{"isSingular":true,"value":"PTR","castInto":"str"}`, "", false)
}

func TestExact(t *testing.T) {
	deepEqual(t, Exact("a"), "a/")
	deepEqual(t, Exact("a/b"), "a%2Fb/")
	deepEqual(t, Exact("100%"), "100%25/")
	deepEqual(t, Exact(int64(42)), "42/")
	deepEqual(t, Exact(2.0), "2/")
}

func TestIsPointerKey(t *testing.T) {
	deepEqual(t, IsPointerKey("TBL:users-PTR:email-x/1"), true)
	deepEqual(t, IsPointerKey("PTR"), true)
	deepEqual(t, IsPointerKey("TBL:users-1"), false)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"users", "user_profiles", "v2", "a.b"} {
		if err := validateName("table", name); err != nil {
			t.Errorf("** validateName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", "a-b", "a:b", "TBL:x"} {
		if err := validateName("table", name); err == nil {
			t.Errorf("** validateName(%q) succeeded", name)
		}
	}
}
