package orders

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"merza/models"
	"merza/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func invoiceSecret() []byte {
	if s := os.Getenv("INVOICE_HMAC_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("dev-invoice-secret")
}

// invoiceQRPayload returns orderID|userID|timestamp|signature so a scanned
// invoice can be checked for tampering.
func invoiceQRPayload(orderID, userID string) string {
	data := fmt.Sprintf("%s|%s|%d", orderID, userID, time.Now().Unix())
	mac := hmac.New(sha256.New, invoiceSecret())
	mac.Write([]byte(data))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s|%s", data, sig)
}

// GET /api/orders/:id/invoice
// Streams the order invoice as a PDF with a signed QR code.
func (h *Handler) DownloadInvoice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orderID, err := primitive.ObjectIDFromHex(ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	var order models.Order
	err = h.DB.Orders.FindOne(ctx, bson.M{"_id": orderID, "userId": userID}).Decode(&order)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	qrPNG, err := qrcode.Encode(invoiceQRPayload(order.ID.Hex(), userID.Hex()), qrcode.Medium, 256)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Invoice")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Order: %s", order.ID.Hex()))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Date: %s", order.CreatedAt.Format("2006-01-02 15:04")))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s", order.Status))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(60, 8, "SKU", "1", 0, "", false, 0, "")
	pdf.CellFormat(25, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, "Unit Price", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Line Total", "1", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, item := range order.Items {
		pdf.CellFormat(60, 8, item.SKU, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", item.UnitPrice*float64(item.Quantity)), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(125, 10, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 10, fmt.Sprintf("%.2f", order.TotalAmount), "1", 1, "R", false, 0, "")

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 20, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=invoice-"+order.ID.Hex()+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
