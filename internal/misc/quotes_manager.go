package misc

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"

	log "github.com/sirupsen/logrus"
)

type Quote struct {
	Text   string `json:"text"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

// QuotesManager serves the motivational quotes shown in the app between
// workouts. Quotes come from a CSV file loaded once at startup.
type QuotesManager struct {
	Quotes       []*Quote
	GenresQuotes map[string][]*Quote
}

func NewQuoteManager(quotesCsvReader *csv.Reader) (*QuotesManager, error) {
	qm := &QuotesManager{}
	qm.GenresQuotes = make(map[string][]*Quote)

	log.Println("reading quotes CSV ...")

	quotesCsvReader.Comma = ';'
	for {
		record, err := quotesCsvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(record) != 3 {
			return nil, fmt.Errorf("record [%s] does not have 3 elements", record)
		}

		// QUOTE;AUTHOR;GENRE
		quote := &Quote{
			Text:   record[0],
			Author: record[1],
			Genre:  record[2],
		}
		qm.Quotes = append(qm.Quotes, quote)
		qm.GenresQuotes[quote.Genre] = append(qm.GenresQuotes[quote.Genre], quote)
	}

	log.Printf("quotes CSV read %d quotes", len(qm.Quotes))

	return qm, nil
}

func (qm *QuotesManager) RandomQuote() *Quote {
	index := rand.Float64() * float64(len(qm.Quotes))
	return qm.Quotes[int(index)]
}
