package models

import (
	"strings"
	"time"
)

// Crop is one planted cultivation tracked through the fixed stage template.
// Exactly one entry in Stages is active.
type Crop struct {
	ID           string      `bson:"_id"                    json:"id"`
	OwnerID      string      `bson:"ownerId"                json:"ownerId"`
	FarmID       string      `bson:"farmId"                 json:"farmId"`
	Name         string      `bson:"name"                   json:"name"`
	Image        string      `bson:"image"                  json:"image"`
	Location     string      `bson:"location"               json:"location"`
	LandArea     string      `bson:"landArea"               json:"landArea"`
	SowingDate   string      `bson:"sowingDate"             json:"sowingDate"` // YYYY-MM-DD
	SowingPeriod string      `bson:"sowingPeriod"           json:"sowingPeriod"`
	CurrentStage string      `bson:"currentStage"           json:"currentStage"`
	Stages       []CropStage `bson:"stages"                 json:"stages"`
	SeedsPlanted *int        `bson:"seedsPlanted,omitempty" json:"seedsPlanted,omitempty"`
	CropType     string      `bson:"cropType,omitempty"     json:"cropType,omitempty"`
	CreatedAt    time.Time   `bson:"createdAt"              json:"createdAt"`
}

// CropStage is one step of the growth template.
type CropStage struct {
	Name        string `bson:"name"        json:"name"`
	Description string `bson:"description" json:"description"`
	Date        string `bson:"date"        json:"date"` // display date, e.g. "Nov 1, 2024"
	IsActive    bool   `bson:"isActive"    json:"isActive"`
}

// ActiveStages counts stages flagged active.
func (c Crop) ActiveStages() int {
	n := 0
	for _, s := range c.Stages {
		if s.IsActive {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (c Crop) Clone() Crop {
	out := c
	out.Stages = append([]CropStage(nil), c.Stages...)
	if c.SeedsPlanted != nil {
		v := *c.SeedsPlanted
		out.SeedsPlanted = &v
	}
	return out
}

const (
	StagePlanting   = "Planting Phase"
	StageVegetative = "Vegetative Phase"
	StageFlowering  = "Flowering Phase"
	StageHarvesting = "Harvesting Phase"
)

const displayDate = "Jan 2, 2006"

// stageTemplate is assigned to every new crop and never reordered.
var stageTemplate = []struct {
	name, description string
	offsetDays        int
}{
	{StagePlanting, "Seeds sown and establishing roots", 0},
	{StageVegetative, "Leaf and stem growth, peak nutrient uptake", 30},
	{StageFlowering, "Flowers form, water stress is critical", 75},
	{StageHarvesting, "Crop matures and is ready to harvest", 120},
}

// CropProfile is the catalog entry for a crop type.
type CropProfile struct {
	SowingPeriod string
	Image        string
}

const (
	DefaultSowingPeriod = "Jan – Dec"
	DefaultCropImage    = "https://images.unsplash.com/photo-1500937386664-56d1dfef3854?w=800"
)

// cropCatalog maps a lower-cased crop type to its sowing window and stock photo.
var cropCatalog = map[string]CropProfile{
	"wheat":     {SowingPeriod: "Oct – Mar", Image: "https://images.unsplash.com/photo-1574323347407-f5e1ad6d020b?w=800"},
	"rice":      {SowingPeriod: "Jun – Nov", Image: "https://images.unsplash.com/photo-1536304993881-ff6e9eefa2a6?w=800"},
	"maize":     {SowingPeriod: "Jun – Oct", Image: "https://images.unsplash.com/photo-1551754655-cd27e38d2076?w=800"},
	"corn":      {SowingPeriod: "Jun – Oct", Image: "https://images.unsplash.com/photo-1551754655-cd27e38d2076?w=800"},
	"cotton":    {SowingPeriod: "Apr – Oct", Image: "https://images.unsplash.com/photo-1605000797499-95a51c5269ae?w=800"},
	"sugarcane": {SowingPeriod: "Feb – Dec", Image: "https://images.unsplash.com/photo-1598512752271-33f913a5af13?w=800"},
	"soybean":   {SowingPeriod: "Jun – Oct", Image: "https://images.unsplash.com/photo-1599940824399-b87987ceb72a?w=800"},
	"tomato":    {SowingPeriod: "Jul – Feb", Image: "https://images.unsplash.com/photo-1592841200221-a6898f307baa?w=800"},
	"potato":    {SowingPeriod: "Oct – Feb", Image: "https://images.unsplash.com/photo-1518977676601-b53f82aba655?w=800"},
}

// Profile returns the catalog entry for cropType, or the all-year default.
func Profile(cropType string) CropProfile {
	if p, ok := cropCatalog[strings.ToLower(strings.TrimSpace(cropType))]; ok {
		return p
	}
	return CropProfile{SowingPeriod: DefaultSowingPeriod, Image: DefaultCropImage}
}

// CropInput is the crop registration form.
type CropInput struct {
	FarmID       string `json:"farmId"`
	Name         string `json:"name"`
	CropType     string `json:"cropType"`
	SowingDate   string `json:"sowingDate"`
	LandArea     string `json:"landArea"`
	Location     string `json:"location,omitempty"`
	Image        string `json:"image,omitempty"`
	SeedsPlanted *int   `json:"seedsPlanted,omitempty"`
}

// Validate performs the registration presence checks.
func (in CropInput) Validate() error {
	if strings.TrimSpace(in.FarmID) == "" {
		return &ValidationError{Field: "farmId", Message: "select a farm for this crop"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "crop name is required"}
	}
	if strings.TrimSpace(in.SowingDate) == "" {
		return &ValidationError{Field: "sowingDate", Message: "sowing date is required"}
	}
	if _, err := time.Parse(time.DateOnly, in.SowingDate); err != nil {
		return &ValidationError{Field: "sowingDate", Message: "sowing date must be YYYY-MM-DD"}
	}
	if strings.TrimSpace(in.LandArea) == "" {
		return &ValidationError{Field: "landArea", Message: "land area is required"}
	}
	if in.SeedsPlanted != nil && *in.SeedsPlanted < 0 {
		return &ValidationError{Field: "seedsPlanted", Message: "seeds planted cannot be negative"}
	}
	return nil
}

// NewCrop builds the unsaved crop for a registration form: catalog defaults,
// the four-stage template with the first stage active, and the owning farm's
// location when the form leaves it blank.
func NewCrop(in CropInput, ownerID, farmLocation string, now time.Time) (Crop, error) {
	if err := in.Validate(); err != nil {
		return Crop{}, err
	}
	sowed, _ := time.Parse(time.DateOnly, in.SowingDate)
	cropType := strings.ToLower(strings.TrimSpace(in.CropType))
	profile := Profile(cropType)

	c := Crop{
		OwnerID:      ownerID,
		FarmID:       in.FarmID,
		Name:         strings.TrimSpace(in.Name),
		Image:        strings.TrimSpace(in.Image),
		Location:     strings.TrimSpace(in.Location),
		LandArea:     landAreaLabel(in.LandArea),
		SowingDate:   in.SowingDate,
		SowingPeriod: profile.SowingPeriod,
		CurrentStage: StagePlanting,
		Stages:       BuildStages(sowed),
		SeedsPlanted: in.SeedsPlanted,
		CropType:     cropType,
		CreatedAt:    now.UTC(),
	}
	if c.Image == "" {
		c.Image = profile.Image
	}
	if c.Location == "" {
		c.Location = farmLocation
	}
	return c, nil
}

// BuildStages lays the template out from the sowing date; only the first stage is active.
func BuildStages(sowed time.Time) []CropStage {
	out := make([]CropStage, len(stageTemplate))
	for i, t := range stageTemplate {
		out[i] = CropStage{
			Name:        t.name,
			Description: t.description,
			Date:        sowed.AddDate(0, 0, t.offsetDays).Format(displayDate),
			IsActive:    i == 0,
		}
	}
	return out
}

func landAreaLabel(s string) string {
	s = strings.TrimSpace(s)
	if v, err := parseArea(s); err == nil {
		return FormatAcres(v)
	}
	return s
}
