package cookiestore

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/cookiewall/cookies"
)

func TestBlocker_Remove_FallsBackToHTTP(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar(cookies.Record{Name: "_ga", Domain: ".example.com", Path: "/"})
	jar.RejectSchemes = []string{"https"}

	if err := NewBlocker(jar, nil).Remove(ctx, ".example.com", "/", "_ga"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	left, _ := jar.Cookies(ctx, "www.example.com")
	if len(left) != 0 {
		t.Errorf("left: got %+v", left)
	}
}

func TestBlocker_Remove_BothFail(t *testing.T) {
	jar := NewMemoryJar()
	jar.RejectSchemes = []string{"https", "http"}
	err := NewBlocker(jar, nil).Remove(context.Background(), "example.com", "", "_ga")
	if !errors.Is(err, ErrRemovalFailed) {
		t.Errorf("error: got %v, want ErrRemovalFailed", err)
	}
}

func TestBlocker_BlockDomain(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar(
		cookies.Record{Name: "_ga", Domain: ".example.com", Path: "/"},
		cookies.Record{Name: "_fbp", Domain: "www.example.com", Path: "/"},
		cookies.Record{Name: "sessionid", Domain: "www.example.com", Path: "/"},
		cookies.Record{Name: "_gid", Domain: "other.org", Path: "/"},
	)

	n, err := NewBlocker(jar, nil).BlockDomain(ctx, "www.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed: got %d, want 2", n)
	}
	left, _ := jar.Cookies(ctx, "www.example.com")
	if len(left) != 1 || left[0].Name != "sessionid" {
		t.Errorf("left: got %+v", left)
	}
	other, _ := jar.Cookies(ctx, "other.org")
	if len(other) != 1 {
		t.Errorf("other domain touched: %+v", other)
	}
}

func TestBlocker_BlockDomain_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	jar := NewMemoryJar(cookies.Record{Name: "_ga", Domain: "example.com"})
	jar.RejectSchemes = []string{"https", "http"}
	n, err := NewBlocker(jar, nil).BlockDomain(ctx, "example.com")
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if n != 0 {
		t.Errorf("removed: got %d, want 0", n)
	}
}
