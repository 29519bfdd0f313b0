package repository

import "time"

// Detection statuses. PROCESSING is the only non-terminal state.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// User is a registered account.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"column:email;uniqueIndex;size:255;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	DisplayName  string    `gorm:"column:display_name;size:100"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// Detection is one analysis request. Result columns stay NULL unless
// Status is COMPLETED.
type Detection struct {
	ID               string  `gorm:"primaryKey;size:36"`
	OwnerID          *string `gorm:"column:owner_id;size:36;index:idx_detection_owner_created,priority:1"`
	OriginalFilename string  `gorm:"column:original_filename;size:255"`
	StoredLocator    string  `gorm:"column:stored_locator;type:text;not null"`
	Status           string  `gorm:"column:status;size:16;not null;index"`

	Label                *int     `gorm:"column:label"`
	LabelName            *string  `gorm:"column:label_name;size:64"`
	RiskState            *string  `gorm:"column:risk_state;size:64"`
	Confidence           *float64 `gorm:"column:confidence"`
	StructuralSimilarity *float64 `gorm:"column:structural_similarity"`
	PerceptualDistance   *float64 `gorm:"column:perceptual_distance"`
	ResidualMean         *float64 `gorm:"column:residual_mean"`
	PeakRatio            *float64 `gorm:"column:peak_ratio"`
	HeatmapLocator       *string  `gorm:"column:heatmap_locator;type:text"`

	CreatedAt   time.Time  `gorm:"column:created_at;index:idx_detection_owner_created,priority:2"`
	FinalizedAt *time.Time `gorm:"column:finalized_at"`
}

// TableName overrides the default table name.
func (Detection) TableName() string {
	return "detection_requests"
}

// IsTerminal reports whether the detection reached COMPLETED or FAILED.
func (d *Detection) IsTerminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusFailed
}

// OwnedBy reports whether userID owns the detection. Ownerless detections
// are owned by nobody.
func (d *Detection) OwnedBy(userID string) bool {
	return d.OwnerID != nil && userID != "" && *d.OwnerID == userID
}

// Verdict holds the result columns written when a detection completes.
type Verdict struct {
	Label                int
	LabelName            string
	RiskState            string
	Confidence           float64
	StructuralSimilarity float64
	PerceptualDistance   float64
	ResidualMean         float64
	PeakRatio            float64
	HeatmapLocator       string
}

// DetectionStats aggregates one owner's history.
type DetectionStats struct {
	Total             int64   `gorm:"column:total"`
	Completed         int64   `gorm:"column:completed"`
	Failed            int64   `gorm:"column:failed"`
	AverageConfidence float64 `gorm:"column:average_confidence"`
}
