package handlers

import (
	"time"

	"github.com/example/ai-detector/internal/repository"
)

type detectionResponse struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	OriginalFileName string    `json:"originalFileName"`
	Label            *int      `json:"label"`
	LabelName        *string   `json:"labelName"`
	State            *string   `json:"state"`
	Confidence       *float64  `json:"confidence"`
	SSIM             *float64  `json:"ssim"`
	LPIPS            *float64  `json:"lpips"`
	RM               *float64  `json:"rm"`
	PVR              *float64  `json:"pvr"`
	OriginalImageURL string    `json:"originalImageUrl"`
	HeatmapImageURL  *string   `json:"heatmapImageUrl"`
	CreatedAt        time.Time `json:"createdAt"`
}

func newDetectionResponse(d *repository.Detection) detectionResponse {
	return detectionResponse{
		ID:               d.ID,
		Status:           d.Status,
		OriginalFileName: d.OriginalFilename,
		Label:            d.Label,
		LabelName:        d.LabelName,
		State:            d.RiskState,
		Confidence:       d.Confidence,
		SSIM:             d.StructuralSimilarity,
		LPIPS:            d.PerceptualDistance,
		RM:               d.ResidualMean,
		PVR:              d.PeakRatio,
		OriginalImageURL: d.StoredLocator,
		HeatmapImageURL:  d.HeatmapLocator,
		CreatedAt:        d.CreatedAt,
	}
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(u *repository.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.DisplayName, CreatedAt: u.CreatedAt}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name string `json:"name"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
