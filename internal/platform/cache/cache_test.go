package cache

import (
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/p-n-ai/pai-recall/internal/deck"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/0", false},
		{"empty", "", true},
		{"wrong-scheme", "http://localhost:6379", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	ctx := t.Context()
	_, err := New(ctx, "redis://localhost:59999", time.Minute)
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}

func TestDeckCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	ctr, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting redis: %v", err)
	}
	url, err := ctr.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		t.Fatalf("PortEndpoint() error = %v", err)
	}

	c, err := New(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	if _, ok, err := c.GetDeck(ctx, "missing"); ok || err != nil {
		t.Fatalf("GetDeck(missing) = %v, %v, want miss", ok, err)
	}

	want := &deck.Deck{
		ID:     "geo.json",
		Name:   "Geography",
		Format: deck.FormatJSON,
		Questions: []deck.Question{
			{ID: "pl", Text: "Capital of Poland?", Kind: deck.SingleChoice, Options: []string{"Kraków", "Warszawa"}, CorrectAnswers: []string{"Warszawa"}},
		},
		Warnings: []deck.Warning{{Line: 3, Message: "unrecognized block"}},
	}
	if err := c.PutDeck(ctx, "k1", want); err != nil {
		t.Fatalf("PutDeck() error = %v", err)
	}

	got, ok, err := c.GetDeck(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("GetDeck() = %v, %v, want hit", ok, err)
	}
	q := got.Questions[0]
	if got.Name != want.Name || q.Kind != deck.SingleChoice || q.Options[1] != "Warszawa" || len(got.Warnings) != 1 {
		t.Errorf("GetDeck() = %+v, want %+v", got, want)
	}

	ttl, err := c.Client.TTL(ctx, keyPrefix+"k1").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, %v, want at most a minute", ttl, err)
	}
}
