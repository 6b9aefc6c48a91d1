package vault

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestHandler(t *testing.T) (*mux.Router, *gorm.DB) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Patient{}, &models.MediaAsset{}))

	router := mux.NewRouter()
	NewHandler(db).RegisterRoutes(router)
	return router, db
}

func seedAssets(t *testing.T, db *gorm.DB) (bronze, gold models.MediaAsset) {
	t.Helper()
	bronze = models.MediaAsset{
		Title: "Morning Routines", Type: "Blog",
		MediaURL: "https://cdn.example/morning", RequiredTier: models.TierBronze,
		PublishedAt: time.Now().Add(-time.Hour),
	}
	gold = models.MediaAsset{
		Title: "Deep Iris Reading", Type: "Video",
		MediaURL: "https://cdn.example/iris", RequiredTier: models.TierGold,
		PublishedAt: time.Now(),
	}
	require.NoError(t, db.Create(&bronze).Error)
	require.NoError(t, db.Create(&gold).Error)
	return bronze, gold
}

func getAs(t *testing.T, router *mux.Router, userID uint, role, path string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := utils.GenerateJWT(userID, role, 60)
	require.NoError(t, err)
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestVaultListingHidesLockedMediaURLs(t *testing.T) {
	router, db := newTestHandler(t)
	seedAssets(t, db)

	patient := models.Patient{FullName: "Jad Khoury", CountryCode: "+961", Phone: "70123456", Tier: models.TierBronze}
	require.NoError(t, db.Create(&patient).Error)

	rr := getAs(t, router, patient.ID, utils.RolePatient, "/vault")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Tier   string `json:"tier"`
		Assets []struct {
			Title      string `json:"title"`
			MediaURL   string `json:"media_url"`
			Accessible bool   `json:"accessible"`
		} `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, models.TierBronze, body.Tier)
	require.Len(t, body.Assets, 2)

	// Newest first.
	assert.Equal(t, "Deep Iris Reading", body.Assets[0].Title)
	assert.False(t, body.Assets[0].Accessible)
	assert.Empty(t, body.Assets[0].MediaURL)

	assert.True(t, body.Assets[1].Accessible)
	assert.NotEmpty(t, body.Assets[1].MediaURL)
}

func TestVaultAssetTierGate(t *testing.T) {
	router, db := newTestHandler(t)
	_, gold := seedAssets(t, db)

	bronzePatient := models.Patient{FullName: "Jad Khoury", CountryCode: "+961", Phone: "70123456", Tier: models.TierBronze}
	require.NoError(t, db.Create(&bronzePatient).Error)
	goldPatient := models.Patient{FullName: "Nour Haddad", CountryCode: "+33", Phone: "600000001", Tier: models.TierGold}
	require.NoError(t, db.Create(&goldPatient).Error)

	path := fmt.Sprintf("/vault/%d", gold.ID)
	assert.Equal(t, http.StatusForbidden, getAs(t, router, bronzePatient.ID, utils.RolePatient, path).Code)
	assert.Equal(t, http.StatusOK, getAs(t, router, goldPatient.ID, utils.RolePatient, path).Code)

	// The practitioner sees everything.
	assert.Equal(t, http.StatusOK, getAs(t, router, 1, utils.RolePractitioner, path).Code)

	assert.Equal(t, http.StatusNotFound, getAs(t, router, goldPatient.ID, utils.RolePatient, "/vault/999").Code)
}
