package views

import (
	"context"
	"fmt"
	"sync"

	"doit/internal/media"
	"doit/internal/service"
)

// ProfileView shows a user's profile with their rating.
type ProfileView struct {
	svc   service.Service
	media *media.Pipeline
	uid   string

	mu      sync.Mutex
	profile service.Profile
	stats   service.ReviewStats
	reviews []service.Review
}

// NewProfileView creates a view of uid's profile.
func NewProfileView(svc service.Service, pipeline *media.Pipeline, uid string) *ProfileView {
	return &ProfileView{svc: svc, media: pipeline, uid: uid}
}

// Load fetches the profile, rating aggregate and received reviews.
func (v *ProfileView) Load(ctx context.Context) error {
	p, err := v.svc.Profile(ctx, v.uid)
	if err != nil {
		return err
	}
	stats, err := v.svc.ReviewStats(ctx, v.uid)
	if err != nil {
		return err
	}
	reviews, err := v.svc.Reviews(ctx, v.uid)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.profile, v.stats, v.reviews = p, stats, reviews
	v.mu.Unlock()
	return nil
}

// Profile returns the last loaded profile.
func (v *ProfileView) Profile() service.Profile {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.profile
}

// Stats returns the last loaded rating aggregate.
func (v *ProfileView) Stats() service.ReviewStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Reviews returns the last loaded reviews.
func (v *ProfileView) Reviews() []service.Review {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]service.Review(nil), v.reviews...)
}

// Update applies in to the signed-in user's profile and reloads.
func (v *ProfileView) Update(ctx context.Context, in service.ProfileUpdate) error {
	if _, err := v.svc.UpdateProfile(ctx, in); err != nil {
		return err
	}
	return v.Load(ctx)
}

// UploadAvatar stores f as the profile picture, records its URL on the
// profile and reloads.
func (v *ProfileView) UploadAvatar(ctx context.Context, f media.File) (string, error) {
	if v.media == nil {
		return "", fmt.Errorf("image upload not configured")
	}
	url, err := v.media.UploadAvatar(ctx, v.uid, f)
	if err != nil {
		return "", err
	}
	if err := v.Update(ctx, service.ProfileUpdate{AvatarURL: &url}); err != nil {
		return url, err
	}
	return url, nil
}
