package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dukerupert/handover"
	"github.com/google/uuid"
)

// objectKey returns the object's key, generating a unique one from the file
// name when none was given.
func objectKey(obj handover.Object) string {
	if obj.Key != "" {
		return obj.Key
	}
	return fmt.Sprintf("%d_%s%s", time.Now().Unix(), uuid.New().String(), path.Ext(obj.FileName))
}

// MediaKey builds the storage key for an evidence upload.
func MediaKey(inspectionID int64, itemID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("media/%d/%s/%s%s", inspectionID, itemID, uuid.New().String(), ext)
}

// ReportKey builds the storage key for a report PDF.
func ReportKey(inspectionID int64, orderNumber string) string {
	return fmt.Sprintf("reports/%d/%s", inspectionID, handover.ReportFileName(orderNumber))
}
