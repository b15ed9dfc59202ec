package main

// resolve module maps a predicted class index to an artist catalog
// record, with a deterministic placeholder when no record matches
//

import (
	"fmt"
	"log"

	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

// notice appended to placeholder entities synthesized on catalog miss
const notFoundNotice = "no catalog record found"

// Catalog provides exact-match lookup of known artists by name
type Catalog interface {
	// FindArtist returns the catalog record for given name, the
	// second return value tells whether a record exists
	FindArtist(name string) (Artist, bool, error)
}

// ArtistCatalog implements Catalog on top of MongoDB
type ArtistCatalog struct {
	DBName string
	DBColl string
}

// FindArtist fetches artist record by exact name match
func (c *ArtistCatalog) FindArtist(name string) (Artist, bool, error) {
	var artist Artist
	err := MongoFindOne(c.DBName, c.DBColl, bson.M{"nama": name}, &artist)
	if err == mgo.ErrNotFound {
		return Artist{}, false, nil
	}
	if err != nil {
		return Artist{}, false, err
	}
	return artist, true, nil
}

// Resolve maps a class index to an artist entity through the label
// table and the catalog, an out-of-range index signals a model/label
// table version skew and is surfaced as ResolutionError, a catalog
// miss yields a placeholder entity which is a normal outcome
func Resolve(classIndex int, labels []string, catalog Catalog) (Artist, error) {
	if classIndex < 0 || classIndex >= len(labels) {
		err := stageError("resolve", ResolutionError,
			fmt.Errorf("class index %d outside label table of %d entries", classIndex, len(labels)))
		// version skew between model and label table, alert operators
		log.Printf("ALERT: %v", err)
		return Artist{}, err
	}
	label := labels[classIndex]
	artist, found, err := catalog.FindArtist(label)
	if err != nil {
		return Artist{}, stageError("resolve", DatabaseError, err)
	}
	if !found {
		return Artist{
			Nama:    label,
			Message: fmt.Sprintf("The artist is: %s (%s)", label, notFoundNotice),
		}, nil
	}
	artist.Message = fmt.Sprintf("The artist is: %s", artist.Nama)
	return artist, nil
}
