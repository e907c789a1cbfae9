package simbridge

// Side selects the captain's or first officer's navigation display.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// Position is the aircraft state reported to the terrain renderer.
type Position struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Heading       float64 `json:"heading"`
	Altitude      float64 `json:"altitude"`
	VerticalSpeed float64 `json:"verticalSpeed"`
}

// DisplaySettings describes what one navigation display shows.
type DisplaySettings struct {
	Active            bool `json:"active"`
	Mode              int  `json:"mode"`
	Range             int  `json:"range"`
	EfisMode          int  `json:"efisMode"`
	ArcMode           bool `json:"arcMode"`
	GearDown          bool `json:"gearDown"`
	MapTransitionTime int  `json:"mapTransitionTime"`
	MapTransitionFps  int  `json:"mapTransitionFps"`
}

// TerrainRange is the elevation band covered by the current terrain map.
type TerrainRange struct {
	MinElevation          float64 `json:"minElevation"`
	MinElevationIsWarning bool    `json:"minElevationIsWarning"`
	MinElevationIsCaution bool    `json:"minElevationIsCaution"`
	MaxElevation          float64 `json:"maxElevation"`
	MaxElevationIsWarning bool    `json:"maxElevationIsWarning"`
	MaxElevationIsCaution bool    `json:"maxElevationIsCaution"`
}

// CoRoute is a stored company route.
type CoRoute struct {
	Name        string   `json:"name"`
	Origin      Airport  `json:"origin"`
	Destination Airport  `json:"destination"`
	Alternate   *Airport `json:"alternate,omitempty"`
	General     General  `json:"general"`
	Navlog      Navlog   `json:"navlog"`
}

type Airport struct {
	IcaoCode   string `json:"icao_code"`
	PlanRwy    string `json:"plan_rwy,omitempty"`
	TransAlt   int    `json:"trans_alt,omitempty"`
	TransLevel int    `json:"trans_level,omitempty"`
}

type General struct {
	InitialAltitude int    `json:"initial_altitude,omitempty"`
	CostIndex       int    `json:"costindex,omitempty"`
	Route           string `json:"route,omitempty"`
}

type Navlog struct {
	Fix []Fix `json:"fix"`
}

type Fix struct {
	Ident     string  `json:"ident"`
	Type      string  `json:"type,omitempty"`
	ViaAirway string  `json:"via_airway,omitempty"`
	IsSidStar bool    `json:"is_sid_star,omitempty"`
	PosLat    float64 `json:"pos_lat"`
	PosLong   float64 `json:"pos_long"`
}

// Blob is a binary payload together with its media type.
type Blob struct {
	ContentType string
	Data        []byte
}
