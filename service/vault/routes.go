package vault

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle("/vault", utils.AuthMiddleware(http.HandlerFunc(h.GetVault))).Methods("GET")
	router.Handle("/vault/{id}", utils.AuthMiddleware(http.HandlerFunc(h.GetAsset))).Methods("GET")
	router.Handle("/practitioner/vault", utils.PractitionerOnly(http.HandlerFunc(h.CreateAsset))).Methods("POST")
}

type assetView struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Type         string    `json:"type"`
	Tags         []string  `json:"tags"`
	ThumbnailURL string    `json:"thumbnail_url"`
	MediaURL     string    `json:"media_url,omitempty"`
	RequiredTier string    `json:"required_tier"`
	PublishedAt  time.Time `json:"published_at"`
	Accessible   bool      `json:"accessible"`
}

func (h *Handler) requesterTier(r *http.Request) string {
	role, _ := utils.GetRoleFromContext(r)
	if role == utils.RolePractitioner {
		return models.TierGold
	}
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		return models.TierBronze
	}
	var patient models.Patient
	if err := h.db.First(&patient, userID).Error; err != nil {
		return models.TierBronze
	}
	return patient.Tier
}

// GetVault lists every published asset. Assets above the requester's tier
// are listed without their media URL so the client can render a locked card.
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	tier := h.requesterTier(r)

	query := h.db.Model(&models.MediaAsset{})
	if assetType := r.URL.Query().Get("type"); assetType != "" {
		query = query.Where("type = ?", assetType)
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		query = query.Where("? = ANY(tags)", tag)
	}

	var assets []models.MediaAsset
	if err := query.Order("published_at DESC").Find(&assets).Error; err != nil {
		http.Error(w, "Error retrieving vault", http.StatusInternalServerError)
		return
	}

	views := make([]assetView, 0, len(assets))
	for _, asset := range assets {
		views = append(views, viewFor(asset, tier))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tier":   tier,
		"assets": views,
		"total":  len(views),
	})
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	var asset models.MediaAsset
	if err := h.db.First(&asset, mux.Vars(r)["id"]).Error; err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}

	tier := h.requesterTier(r)
	if !models.TierUnlocks(tier, asset.RequiredTier) {
		http.Error(w, "Upgrade required to access this content", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(viewFor(asset, tier))
}

func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var asset models.MediaAsset
	if err := json.NewDecoder(r.Body).Decode(&asset); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if asset.Title == "" || asset.MediaURL == "" {
		http.Error(w, "Title and media URL are required", http.StatusBadRequest)
		return
	}
	switch asset.Type {
	case "Blog", "Video", "Audio", "Interview":
	default:
		http.Error(w, "Invalid asset type", http.StatusBadRequest)
		return
	}
	switch asset.RequiredTier {
	case "":
		asset.RequiredTier = models.TierBronze
	case models.TierBronze, models.TierSilver, models.TierGold:
	default:
		http.Error(w, "Invalid tier", http.StatusBadRequest)
		return
	}
	if asset.PublishedAt.IsZero() {
		asset.PublishedAt = time.Now()
	}

	if err := h.db.Create(&asset).Error; err != nil {
		http.Error(w, "Error creating asset", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(asset)
}

func viewFor(asset models.MediaAsset, tier string) assetView {
	accessible := models.TierUnlocks(tier, asset.RequiredTier)
	view := assetView{
		ID:           asset.ID,
		Title:        asset.Title,
		Description:  asset.Description,
		Type:         asset.Type,
		Tags:         asset.Tags,
		ThumbnailURL: asset.ThumbnailURL,
		RequiredTier: asset.RequiredTier,
		PublishedAt:  asset.PublishedAt,
		Accessible:   accessible,
	}
	if accessible {
		view.MediaURL = asset.MediaURL
	}
	return view
}
