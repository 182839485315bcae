package service

import (
	"context"
	"testing"
	"time"

	"license-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLicense_Authorization(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	owner := &model.User{Email: "owner@example.com", Password: "x", Role: model.RoleUser}
	require.NoError(t, store.Users.Create(ctx, owner))
	user := Principal{UserID: owner.ID, Email: owner.Email, Role: model.RoleUser}

	l, err := svc.CreateLicense(ctx, admin, CreateLicenseInput{OwnerEmail: "Owner@Example.com", Tier: model.TierPro})
	require.NoError(t, err)
	require.NotNil(t, l.OwnerUserID)
	assert.Equal(t, owner.ID, *l.OwnerUserID, "admin issuance links an existing account")
	assert.Equal(t, "owner@example.com", l.OwnerEmail)

	l, err = svc.CreateLicense(ctx, admin, CreateLicenseInput{OwnerEmail: "stranger@example.com", Tier: model.TierPro})
	require.NoError(t, err)
	assert.Nil(t, l.OwnerUserID)

	l, err = svc.CreateLicense(ctx, user, CreateLicenseInput{OwnerEmail: owner.Email, Tier: model.TierStarter, DurationMonths: 1})
	require.NoError(t, err)
	require.NotNil(t, l.OwnerUserID)
	assert.Equal(t, owner.ID, *l.OwnerUserID)

	_, err = svc.CreateLicense(ctx, user, CreateLicenseInput{OwnerEmail: "someone@else.com", Tier: model.TierStarter})
	requirePolicyError(t, err, CodeForbidden)
}

func TestCreateLicense_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	tests := []struct {
		name string
		in   CreateLicenseInput
	}{
		{"missing email", CreateLicenseInput{Tier: model.TierPro}},
		{"unknown tier", CreateLicenseInput{OwnerEmail: "a@b.com", Tier: "enterprise"}},
		{"duration too long", CreateLicenseInput{OwnerEmail: "a@b.com", Tier: model.TierPro, DurationMonths: 121}},
		{"negative duration", CreateLicenseInput{OwnerEmail: "a@b.com", Tier: model.TierPro, DurationMonths: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLicense(ctx, admin, tt.in)
			requirePolicyError(t, err, CodeValidation)
		})
	}

	l, err := svc.CreateLicense(ctx, admin, CreateLicenseInput{OwnerEmail: "a@b.com", Tier: model.TierAgency})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().AddDate(0, 12, 0), *l.ExpiresAt, "duration defaults to twelve months")
	assert.Equal(t, 10, l.MaxActivations)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	l := createLicense(t, svc, model.TierPro)

	// any status can move to any other
	for _, status := range []string{model.StatusCancelled, model.StatusActive, model.StatusExpired, model.StatusSuspended} {
		updated, err := svc.UpdateStatus(ctx, l.Key, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	_, err := svc.UpdateStatus(ctx, l.Key, "pending")
	requirePolicyError(t, err, CodeInvalidStatus)
	_, err = svc.UpdateStatus(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", model.StatusActive)
	requirePolicyError(t, err, CodeLicenseNotFound)
	_, err = svc.UpdateStatus(ctx, "bad", model.StatusActive)
	requirePolicyError(t, err, CodeInvalidFormat)
}

func TestListDetailAndHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	alice := Principal{UserID: 10, Email: "alice@example.com", Role: model.RoleUser}
	bob := Principal{UserID: 11, Email: "bob@example.com", Role: model.RoleUser}

	mine, err := svc.CreateLicense(ctx, alice, CreateLicenseInput{OwnerEmail: alice.Email, Tier: model.TierPro})
	require.NoError(t, err)
	_, err = svc.CreateLicense(ctx, bob, CreateLicenseInput{OwnerEmail: bob.Email, Tier: model.TierPro})
	require.NoError(t, err)

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.Key, list[0].Key)

	list, err = svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = activate(ctx, svc, mine.Key, "example.com")
	require.NoError(t, err)
	_, err = svc.TrackUsage(ctx, UsageInput{LicenseKey: mine.Key, Domain: "example.com", Count: 5})
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, alice, mine.Key)
	require.NoError(t, err)
	assert.Len(t, detail.Activations, 1)
	assert.EqualValues(t, 5, detail.Usage.APICalls)
	assert.EqualValues(t, 5, detail.Quota.Used)

	_, err = svc.Detail(ctx, bob, mine.Key)
	requirePolicyError(t, err, CodeLicenseNotFound)
	_, err = svc.Detail(ctx, admin, mine.Key)
	require.NoError(t, err)

	clock.Advance(31 * 24 * time.Hour)
	_, err = svc.TrackUsage(ctx, UsageInput{LicenseKey: mine.Key, Domain: "example.com", Count: 2})
	require.NoError(t, err)

	history, err := svc.UsageHistory(ctx, alice, mine.Key, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.EqualValues(t, 2, history[0].APICalls, "most recent month first")
	assert.EqualValues(t, 5, history[1].APICalls)

	history, err = svc.UsageHistory(ctx, alice, mine.Key, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = svc.UsageHistory(ctx, bob, mine.Key, 6)
	requirePolicyError(t, err, CodeLicenseNotFound)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	short, err := svc.Create(ctx, "a@b.com", model.TierPro, 1, nil)
	require.NoError(t, err)
	long := createLicense(t, svc, model.TierPro)
	free := createLicense(t, svc, model.TierFree)

	clock.Advance(45 * 24 * time.Hour)
	swept, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, short.Key, swept[0].Key)

	for key, want := range map[string]string{
		short.Key: model.StatusExpired,
		long.Key:  model.StatusActive,
		free.Key:  model.StatusActive,
	} {
		l, err := store.Licenses.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, l.Status, key)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	// disabled sweeper returns immediately
	svc.RunSweeper(context.Background(), 0)
}
