package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxReceiptSize = 10 << 20 // 10 MB
	ReceiptPath    = "uploads/receipts"
)

// SaveReceipt saves an uploaded payment receipt and returns its URL path.
func SaveReceipt(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > MaxReceiptSize {
		return "", fmt.Errorf("file size exceeds maximum limit of %d MB", MaxReceiptSize/(1<<20))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isValidReceiptType(ext) {
		return "", fmt.Errorf("invalid file type: %s", ext)
	}

	if err := os.MkdirAll(ReceiptPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %v", err)
	}

	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		ext,
	)
	filePath := filepath.Join(ReceiptPath, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file: %v", err)
	}

	return fmt.Sprintf("/receipts/%s", filename), nil
}

func isValidReceiptType(ext string) bool {
	validTypes := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".pdf":  true,
	}
	return validTypes[ext]
}

func DeleteReceipt(receiptURL string) error {
	filename := filepath.Base(receiptURL)
	filePath := filepath.Join(ReceiptPath, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(filePath)
}
