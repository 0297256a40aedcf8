package views_test

import (
	"context"
	"strings"
	"testing"

	"doit/internal/media"
	"doit/internal/service"
	"doit/internal/testutil"
	"doit/internal/views"
)

func TestProfileView_LoadAndUpdate(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddProfile(service.Profile{UID: "U1", DisplayName: "Anna"})
	v := views.NewProfileView(svc, nil, "U1")
	ctx := context.Background()

	if err := v.Load(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Profile().DisplayName != "Anna" {
		t.Errorf("unexpected profile %+v", v.Profile())
	}

	bio := "Hilfsbereit"
	if err := v.Update(ctx, service.ProfileUpdate{Bio: &bio}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Profile().Bio != bio || v.Profile().DisplayName != "Anna" {
		t.Errorf("expected partial update reloaded, got %+v", v.Profile())
	}
}

func TestProfileView_UploadAvatar(t *testing.T) {
	svc := testutil.NewFakeService("U1")
	svc.AddProfile(service.Profile{UID: "U1"})
	store := testutil.NewFakeStorage()
	v := views.NewProfileView(svc, media.NewPipeline(store, nil), "U1")
	ctx := context.Background()

	url, err := v.UploadAvatar(ctx, media.File{Name: "me.png", Type: "image/png", Data: testutil.PNG(t, 32, 32)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "https://storage.test/avatars/U1/avatar_") {
		t.Errorf("unexpected avatar url %q", url)
	}
	if v.Profile().AvatarURL != url {
		t.Errorf("expected profile to reference avatar, got %q", v.Profile().AvatarURL)
	}
	calls := svc.Calls()
	if calls[0] != "UpdateProfile" || calls[1] != "Profile" {
		t.Errorf("expected update then reload, got %v", calls)
	}
}
