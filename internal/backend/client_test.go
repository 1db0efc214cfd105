package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jajanin-relay/internal/devbackend"
	"jajanin-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *devbackend.Server) {
	t.Helper()
	dev := devbackend.New(devbackend.Options{})
	dev.AddCreator("budi", "sk-budi")
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second), dev
}

func TestCreateDonationQRIS(t *testing.T) {
	client, _ := newTestClient(t)

	resp, err := client.CreateDonation(context.Background(), &models.DonationRequest{
		CreatorUsername: "budi",
		BuyerName:       "Sari",
		BuyerEmail:      "sari@example.com",
		Amount:          15000,
		PaymentMethod:   "qris",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.QRISURL)
	assert.NotEmpty(t, resp.PlatformTradeNo)
	assert.False(t, resp.IsRedirect())
}

func TestCreateDonationWallet(t *testing.T) {
	client, _ := newTestClient(t)

	resp, err := client.CreateDonation(context.Background(), &models.DonationRequest{
		CreatorUsername: "budi",
		BuyerName:       "Sari",
		BuyerEmail:      "sari@example.com",
		Amount:          20000,
		PaymentMethod:   "gopay",
		RedirectURL:     "http://localhost:3000/payment/status",
	})
	require.NoError(t, err)

	assert.True(t, resp.IsRedirect())
	assert.Equal(t, "gopay", resp.PaymentType)
}

func TestCreateDonationUnknownCreator(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.CreateDonation(context.Background(), &models.DonationRequest{
		CreatorUsername: "nobody",
		BuyerName:       "Sari",
		BuyerEmail:      "sari@example.com",
		Amount:          15000,
	})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestLookupPendingThenPaid(t *testing.T) {
	client, dev := newTestClient(t)
	ctx := context.Background()

	resp, err := client.CreateDonation(ctx, &models.DonationRequest{
		CreatorUsername: "budi", BuyerName: "Sari", BuyerEmail: "s@x.id", Amount: 15000, PaymentMethod: "qris",
	})
	require.NoError(t, err)

	res, err := client.Lookup(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCodePending, res.Code)
	assert.Equal(t, models.PaymentStatusPending, Classify(res.Code))

	require.True(t, dev.Settle(resp.Token))

	res, err = client.Lookup(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCodePaid, res.Code)
	assert.NotEmpty(t, res.Raw)
}

func TestLookupTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, time.Second)
	_, err := client.Lookup(context.Background(), "JJN-1")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.PaymentStatusPaid, Classify("02"))
	assert.Equal(t, models.PaymentStatusFailed, Classify("09"))
	assert.Equal(t, models.PaymentStatusPending, Classify("01"))
	assert.Equal(t, models.PaymentStatusPending, Classify("error"))
	assert.Equal(t, models.PaymentStatusPending, Classify(""))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "02", normalizeCode([]byte(`"02"`)))
	assert.Equal(t, "02", normalizeCode([]byte(`2`)))
	assert.Equal(t, "", normalizeCode(nil))
}

func TestCancelAndConfig(t *testing.T) {
	client, dev := newTestClient(t)
	ctx := context.Background()
	dev.SetFeePercent(1.5)

	cfg, err := client.FetchConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg.AdminFeePercent)
	assert.Equal(t, 1.5, *cfg.AdminFeePercent)

	resp, err := client.CreateDonation(ctx, &models.DonationRequest{
		CreatorUsername: "budi", BuyerName: "Sari", BuyerEmail: "s@x.id", Amount: 15000, PaymentMethod: "qris",
	})
	require.NoError(t, err)

	require.NoError(t, client.Cancel(ctx, resp.Token, resp.PlatformTradeNo))

	res, err := client.Lookup(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCodeFailed, res.Code)
}

func TestTestAlertReportsClientCount(t *testing.T) {
	client, _ := newTestClient(t)

	count, err := client.TestAlert(context.Background(), "sk-budi")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = client.TestAlert(context.Background(), "sk-unknown")
	assert.Error(t, err)
}

func TestFetchAlertSettings(t *testing.T) {
	client, dev := newTestClient(t)
	dev.SetAlertSettings("sk-budi", models.AlertSettings{Duration: 8, SoundEnabled: true, SoundFile: "coin", SoundVolume: 80})

	settings, err := client.FetchAlertSettings(context.Background(), "sk-budi")
	require.NoError(t, err)
	assert.Equal(t, 8, settings.Duration)
	assert.Equal(t, "coin", settings.SoundFile)
}
