// Package election describes election cycles: where their source archives
// live, how the extracted files are laid out, and which ridings to process.
package election

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultRidingField is the 0-based DBF field holding the riding number in
// the polling-district boundary files.
const DefaultRidingField = 6

// Manifest describes one election cycle.
type Manifest struct {
	Year        int    `yaml:"year"`
	ResultsURL  string `yaml:"results_url"`
	BoundaryURL string `yaml:"boundary_url"`

	// ResultsDir is the directory, relative to the year's data dir, holding
	// one results CSV per riding named by ResultsPattern (a %d verb).
	ResultsDir     string `yaml:"results_dir"`
	ResultsPattern string `yaml:"results_pattern"`

	// BoundaryShapefile is the .shp path relative to the year's data dir.
	BoundaryShapefile string `yaml:"boundary_shapefile"`
	RidingField       int    `yaml:"riding_field"`
	StationField      string `yaml:"station_field"`
	SourceSRS         string `yaml:"source_srs"`

	// Roster is an optional riding roster CSV relative to the year's data dir.
	// Ridings, when set, takes precedence.
	Roster  string `yaml:"roster"`
	Ridings []int  `yaml:"ridings"`
}

// manifestFile is the on-disk layout: a list of cycles.
type manifestFile struct {
	Elections []Manifest `yaml:"elections"`
}

// DefaultManifest returns the 41st general election (2011) layout, covering
// the two Fredericton-area ridings processed by default.
func DefaultManifest() Manifest {
	return Manifest{
		Year:              2011,
		ResultsURL:        "http://elections.ca/scripts/OVR2011/34/data_donnees/pollresults_resultatsbureau_canada.zip",
		BoundaryURL:       "ftp://ftp.geogratis.gc.ca/pub/nrcan_rncan/vector/electoral/2011/pd308.2011.zip",
		ResultsDir:        "pollresults_resultatsbureau_canada",
		ResultsPattern:    "pollresults_resultatsbureau%d.csv",
		BoundaryShapefile: filepath.Join("pd308.2011", "pd_a.shp"),
		RidingField:       DefaultRidingField,
		StationField:      "PD_NUM",
		Ridings:           []int{13003, 13008},
	}
}

// LoadManifests reads every election cycle from a YAML manifest file.
// Omitted fields fall back to DefaultManifest's layout, except URLs, the
// year and the riding list.
func LoadManifests(path string) ([]Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "election: read manifest %s", path)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, eris.Wrapf(err, "election: parse manifest %s", path)
	}
	if len(mf.Elections) == 0 {
		return nil, eris.Errorf("election: manifest %s lists no elections", path)
	}

	seen := make(map[int]bool, len(mf.Elections))
	for i := range mf.Elections {
		m := &mf.Elections[i]
		if err := m.Validate(); err != nil {
			return nil, eris.Wrapf(err, "election: manifest %s entry %d", path, i)
		}
		if seen[m.Year] {
			return nil, eris.Errorf("election: manifest %s lists year %d twice", path, m.Year)
		}
		seen[m.Year] = true
	}
	return mf.Elections, nil
}

// Select returns the manifest for year, or the default 2011 manifest when
// path is empty.
func Select(path string, year int) (Manifest, error) {
	if path == "" {
		m := DefaultManifest()
		if year != 0 && year != m.Year {
			return Manifest{}, eris.Errorf("election: no built-in manifest for %d; pass --manifest", year)
		}
		return m, nil
	}

	all, err := LoadManifests(path)
	if err != nil {
		return Manifest{}, err
	}
	if year == 0 && len(all) == 1 {
		return all[0], nil
	}
	i := slices.IndexFunc(all, func(m Manifest) bool { return m.Year == year })
	if i < 0 {
		return Manifest{}, eris.Errorf("election: year %d not in manifest %s", year, path)
	}
	return all[i], nil
}

// UnmarshalYAML starts each entry from the default file layout so an
// omitted riding_field means field 6 while an explicit 0 is kept. The same
// holds for results_dir: an explicit "" reads results from the year dir.
func (m *Manifest) UnmarshalYAML(value *yaml.Node) error {
	type plain Manifest
	def := DefaultManifest()
	p := plain{
		ResultsDir:        def.ResultsDir,
		ResultsPattern:    def.ResultsPattern,
		BoundaryShapefile: def.BoundaryShapefile,
		RidingField:       def.RidingField,
		StationField:      def.StationField,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*m = Manifest(p)
	return nil
}

// Validate checks the manifest for values that would fail later in the run.
func (m Manifest) Validate() error {
	if m.Year < 1867 {
		return eris.Errorf("election: invalid year %d", m.Year)
	}
	if m.RidingField < 0 {
		return eris.Errorf("election: riding_field must be >= 0, got %d", m.RidingField)
	}
	if strings.Count(m.ResultsPattern, "%d") != 1 {
		return eris.Errorf("election: results_pattern %q needs a %%d verb", m.ResultsPattern)
	}
	if filepath.Ext(m.BoundaryShapefile) != ".shp" {
		return eris.Errorf("election: boundary_shapefile %q must end in .shp", m.BoundaryShapefile)
	}
	if len(m.Ridings) == 0 && m.Roster == "" {
		return eris.New("election: need ridings or a roster")
	}
	return nil
}

// YearDir is the directory holding a cycle's downloaded and extracted files.
func (m Manifest) YearDir(dataDir string) string {
	return filepath.Join(dataDir, fmt.Sprint(m.Year))
}

// ResultsPath is the results CSV for one riding.
func (m Manifest) ResultsPath(dataDir string, riding int) string {
	return filepath.Join(m.YearDir(dataDir), m.ResultsDir, fmt.Sprintf(m.ResultsPattern, riding))
}

// BoundaryPath is the polling-district shapefile.
func (m Manifest) BoundaryPath(dataDir string) string {
	return filepath.Join(m.YearDir(dataDir), m.BoundaryShapefile)
}

// RosterPath is the roster CSV, or "" when none is configured.
func (m Manifest) RosterPath(dataDir string) string {
	if m.Roster == "" {
		return ""
	}
	return filepath.Join(m.YearDir(dataDir), m.Roster)
}
