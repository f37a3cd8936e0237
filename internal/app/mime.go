package app

import (
	"log"
	"mime"
)

func init() {
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ensureMimeType(".xls", "application/vnd.ms-excel")
	ensureMimeType(".csv", "text/csv; charset=utf-8")
	ensureMimeType(".pdf", "application/pdf")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
