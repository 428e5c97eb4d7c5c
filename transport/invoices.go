package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Invoice is one uploaded invoice and the backend's processing state for
// it. Extraction results are backend-owned; unrecognised fields are simply
// dropped.
type Invoice struct {
	ID           json.Number `json:"id"`
	FileName     string      `json:"file_name"`
	Status       string      `json:"status"`
	SupplierName string      `json:"supplier_name,omitempty"`
	TotalAmount  json.Number `json:"total_amount,omitempty"`
	CarbonImpact json.Number `json:"carbon_impact,omitempty"`
	UploadedAt   string      `json:"uploaded_at,omitempty"`
}

// InvoiceStatus is the processing status for a single invoice.
type InvoiceStatus struct {
	ID       json.Number `json:"id"`
	Status   string      `json:"status"`
	Progress json.Number `json:"progress,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// InvoiceStatistics summarises the authenticated user's invoices.
type InvoiceStatistics struct {
	TotalInvoices   json.Number     `json:"total_invoices"`
	TotalAmount     json.Number     `json:"total_amount"`
	TotalCarbon     json.Number     `json:"total_carbon"`
	ByStatus        json.RawMessage `json:"by_status,omitempty"`
	MonthlyActivity json.RawMessage `json:"monthly_activity,omitempty"`
}

// UploadInvoice uploads an invoice document as multipart form data under
// the "file" field.
func (c *Client) UploadInvoice(ctx context.Context, filename string, content io.Reader) (*Invoice, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.UploadInvoice] create form file")
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, errors.Wrap(err, "[Client.UploadInvoice] copy file content")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "[Client.UploadInvoice] close multipart writer")
	}

	req := &request{
		method:      http.MethodPost,
		path:        "/invoices/upload/",
		body:        buf.Bytes(),
		contentType: writer.FormDataContentType(),
	}
	var out Invoice
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoices lists the authenticated user's invoices; params (page, status,
// supplier) are passed through to the backend.
func (c *Client) Invoices(ctx context.Context, params url.Values) ([]Invoice, error) {
	req := &request{method: http.MethodGet, path: "/invoices/", query: params}
	var out []Invoice
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Invoice fetches one invoice by id.
func (c *Client) Invoice(ctx context.Context, id string) (*Invoice, error) {
	req := &request{method: http.MethodGet, path: fmt.Sprintf("/invoices/%s/", id)}
	var out Invoice
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvoiceStatus fetches the processing status for one invoice.
func (c *Client) InvoiceStatus(ctx context.Context, id string) (*InvoiceStatus, error) {
	req := &request{method: http.MethodGet, path: fmt.Sprintf("/invoices/%s/status/", id)}
	var out InvoiceStatus
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReprocessInvoice asks the backend to run extraction again.
func (c *Client) ReprocessInvoice(ctx context.Context, id string) error {
	req := &request{method: http.MethodPost, path: fmt.Sprintf("/invoices/%s/reprocess/", id)}
	return c.do(ctx, req, nil)
}

// DeleteInvoice removes an invoice.
func (c *Client) DeleteInvoice(ctx context.Context, id string) error {
	req := &request{method: http.MethodDelete, path: fmt.Sprintf("/invoices/%s/delete/", id)}
	return c.do(ctx, req, nil)
}

// InvoiceStatistics fetches aggregate statistics over all invoices.
func (c *Client) InvoiceStatistics(ctx context.Context) (*InvoiceStatistics, error) {
	req := &request{method: http.MethodGet, path: "/invoices/statistics/"}
	var out InvoiceStatistics
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Materials lists the distinct materials extracted from invoices.
func (c *Client) Materials(ctx context.Context) ([]string, error) {
	req := &request{method: http.MethodGet, path: "/invoices/materials/"}
	var out []string
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Suppliers lists the distinct suppliers extracted from invoices.
func (c *Client) Suppliers(ctx context.Context) ([]string, error) {
	req := &request{method: http.MethodGet, path: "/invoices/suppliers/"}
	var out []string
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
