package store_test

import (
	"context"
	"testing"

	"framerand/internal/store"
	"framerand/internal/testsupport"
)

type payload struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

func TestNamespaceRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ns := st.Namespace(store.NamespaceResourceState)

	if err := ns.Set(ctx, "id-1", payload{Kind: "frame", Count: 2}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	found, err := ns.Get(ctx, "id-1", &got)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be present")
	}
	if got.Kind != "frame" || got.Count != 2 {
		t.Fatalf("unexpected value: %#v", got)
	}

	has, err := ns.Has(ctx, "id-1")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !has {
		t.Fatal("expected Has to report true")
	}

	if err := ns.Remove(ctx, "id-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	found, err = ns.Get(ctx, "id-1", &got)
	if err != nil {
		t.Fatalf("Get after remove failed: %v", err)
	}
	if found {
		t.Fatal("expected key to be gone")
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	answers := st.Namespace(store.NamespaceAnswer)
	states := st.Namespace(store.NamespaceResourceState)

	if err := answers.Set(ctx, "shared-id", payload{Kind: "answer"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	has, err := states.Has(ctx, "shared-id")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Fatal("key leaked between namespaces")
	}

	keys, err := answers.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "shared-id" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRemoveAbsentKeyIsNoError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := st.Namespace(store.NamespaceRunState).Remove(context.Background(), "missing"); err != nil {
		t.Fatalf("Remove of absent key failed: %v", err)
	}
}

func TestSetOverwrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ns := st.Namespace(store.NamespaceRunState)
	if err := ns.Set(ctx, "run", payload{Count: 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ns.Set(ctx, "run", payload{Count: 2}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	if _, err := ns.Get(ctx, "run", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("expected overwrite, got %#v", got)
	}
}
