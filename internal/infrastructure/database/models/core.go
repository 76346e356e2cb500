package models

import (
	"time"
)

// Document is one record of a named collection. The value is stored as
// jsonb so ordered subscriptions can sort on fields of the document itself.
type Document struct {
	Collection string    `json:"collection" gorm:"primaryKey;type:text"`
	DocID      string    `json:"docId" gorm:"primaryKey;type:text"`
	Value      string    `json:"value" gorm:"type:jsonb"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate      time.Time `json:"mdate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// Identity backs the auth provider. One row per provisioned identifier; in
// practice the table holds the single admin identity.
type Identity struct {
	Identifier string    `json:"identifier" gorm:"primaryKey;type:text"`
	SecretHash string    `json:"-" gorm:"type:text"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
