package boundary

import (
	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"
)

// RidingSubset is the ordered selection of one riding's records. It keeps
// the parent's field schema; Joined lists any vote-share columns added by
// JoinVoteShares.
type RidingSubset struct {
	Riding    int
	Source    string
	ShapeType shp.ShapeType
	Fields    []shp.Field
	Records   []Record
	Joined    []JoinedField
}

// Len returns the number of records.
func (s *RidingSubset) Len() int {
	return len(s.Records)
}

// Subset selects the records of set whose riding attribute equals riding, in
// their original order. A riding with no records yields an empty subset and
// a warning.
func Subset(set *RecordSet, riding int) *RidingSubset {
	sub := &RidingSubset{
		Riding:    riding,
		Source:    set.Path,
		ShapeType: set.ShapeType,
		Fields:    set.Fields,
	}
	for i := range set.Records {
		if r, ok := set.Riding(i); ok && r == riding {
			sub.Records = append(sub.Records, Record{
				Index:      set.Records[i].Index,
				Shape:      set.Geometry(i),
				Attributes: set.Records[i].Attributes,
			})
		}
	}

	if len(sub.Records) == 0 {
		zap.L().Warn("boundary: no boundary records for riding",
			zap.Int("riding", riding),
			zap.String("path", set.Path),
			zap.String("field", fieldName(set.Fields[set.RidingField])),
		)
	}
	return sub
}
