package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arandulabs/kuatia/internal/config"
	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	customerrepo "github.com/arandulabs/kuatia/internal/customer/repository"
	customerservice "github.com/arandulabs/kuatia/internal/customer/service"
	"github.com/arandulabs/kuatia/internal/fiscal/document"
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	invoicerepo "github.com/arandulabs/kuatia/internal/invoice/repository"
	invoiceservice "github.com/arandulabs/kuatia/internal/invoice/service"
	"github.com/arandulabs/kuatia/internal/observability"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	orderrepo "github.com/arandulabs/kuatia/internal/order/repository"
	orderservice "github.com/arandulabs/kuatia/internal/order/service"
	productdomain "github.com/arandulabs/kuatia/internal/product/domain"
	productrepo "github.com/arandulabs/kuatia/internal/product/repository"
	productservice "github.com/arandulabs/kuatia/internal/product/service"
	returnsdomain "github.com/arandulabs/kuatia/internal/returns/domain"
	returnsrepo "github.com/arandulabs/kuatia/internal/returns/repository"
	returnsservice "github.com/arandulabs/kuatia/internal/returns/service"
	"github.com/arandulabs/kuatia/internal/sequence"
	"github.com/arandulabs/kuatia/internal/warehouse"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSigner struct{}

func (fakeSigner) Sign(docXML []byte, refID string) ([]byte, error) {
	return append(docXML, []byte("<!--signed:"+refID+"-->")...), nil
}

// fakeAuthority approves every synchronous submission.
type fakeAuthority struct{}

func (fakeAuthority) Submit(context.Context, []byte) (*sifen.Response, error) {
	return &sifen.Response{Code: "0260", Message: "Autorizado el DE", Protocol: "76200001"}, nil
}

func (fakeAuthority) SubmitBatch(_ context.Context, docs [][]byte) (*sifen.BatchResponse, error) {
	return &sifen.BatchResponse{Code: "0300", BatchNumber: "7000001"}, nil
}

func (fakeAuthority) QueryByCDC(context.Context, string) (*sifen.StatusResponse, error) {
	return &sifen.StatusResponse{Code: "0260", Status: "Aprobado", Protocol: "76200001"}, nil
}

func (fakeAuthority) QueryBatch(context.Context, string) (*sifen.BatchStatusResponse, error) {
	return &sifen.BatchStatusResponse{Code: "0361", InProcess: true}, nil
}

type serverEnv struct {
	server    *Server
	customers customerdomain.Service
	invoices  invoicedomain.Service
}

func setupServer(t *testing.T) *serverEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&productdomain.Product{},
		&orderdomain.Order{}, &orderdomain.OrderLine{},
		&invoicedomain.Invoice{}, &invoicedomain.InvoiceLine{}, &invoicedomain.Batch{},
		&returnsdomain.Return{}, &returnsdomain.ReturnLine{},
		&warehouse.Receipt{},
		&sequence.Sequence{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	cfg := config.Config{
		HTTPAddr: ":0",
		Sifen: config.SifenConfig{
			QRBaseURL: "https://ekuatia.set.gov.py/consultas/qr",
		},
		Issuer: config.IssuerConfig{
			RUC:           "80012345",
			LegalName:     "ARANDU LABS S.A.",
			Address:       "Avda. Mcal. Lopez 1234",
			City:          "Asuncion",
			Establishment: "001",
			PointOfSale:   "001",
			TaxpayerType:  2,
			Timbrado:      "12560001",
			EmissionMode:  1,
		},
	}

	customers := customerservice.New(customerservice.Params{
		DB: db, Log: log, GenID: node, Repo: customerrepo.Provide(),
	})
	products := productservice.New(productservice.Params{
		DB: db, Log: log, GenID: node, Repo: productrepo.Provide(),
	})
	orders := orderservice.New(orderservice.Params{
		DB: db, Log: log, GenID: node, Repo: orderrepo.Provide(),
	})
	invoices := invoiceservice.New(invoiceservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Config:    cfg,
		Repo:      invoicerepo.Provide(),
		Allocator: sequence.NewAllocator(db),
		Builder:   document.NewBuilder(cfg),
		Signer:    fakeSigner{},
		Authority: fakeAuthority{},
		Orders:    orders,
		Customers: customers,
	})
	warehouseSvc := warehouse.New(warehouse.Params{DB: db, Log: log, GenID: node})
	returnsSvc := returnsservice.New(returnsservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Repo:      returnsrepo.Provide(),
		Allocator: sequence.NewAllocator(db),
		Invoices:  invoices,
		Orders:    orders,
		Warehouse: warehouseSvc,
	})

	engine := NewEngine(observability.Config{}, nil)
	srv := NewServer(ServerParams{
		Gin:          engine,
		Cfg:          cfg,
		DB:           db,
		GenID:        node,
		InvoiceSvc:   invoices,
		ReturnSvc:    returnsSvc,
		CustomerSvc:  customers,
		ProductSvc:   products,
		OrderSvc:     orders,
		WarehouseSvc: warehouseSvc,
	})

	return &serverEnv{server: srv, customers: customers, invoices: invoices}
}

func doJSON(t *testing.T, env *serverEnv, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func approvedInvoice(t *testing.T, env *serverEnv) invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	customer, err := env.customers.Create(ctx, customerdomain.CreateCustomerRequest{
		Name:  "CONSTRUCCIONES DEL SUR S.R.L.",
		TaxID: "4186",
	})
	require.NoError(t, err)
	draft, err := env.invoices.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Lines: []invoicedomain.CreateInvoiceLine{
			{Description: "Cemento 50kg", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(100), TaxRate: 10},
		},
	})
	require.NoError(t, err)
	invoice, err := env.invoices.Issue(ctx, invoicedomain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)
	return invoice
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)
	rec := doJSON(t, env, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCustomerRoutes(t *testing.T) {
	env := setupServer(t)

	rec := doJSON(t, env, http.MethodPost, "/v1/customers", gin.H{
		"name":   "FERRETERIA ITAPUA S.A.",
		"tax_id": "80099887",
		"city":   "Encarnacion",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data customerdomain.Customer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.Data.ID)
	assert.Equal(t, "FERRETERIA ITAPUA S.A.", created.Data.Name)

	rec = doJSON(t, env, http.MethodGet, "/v1/customers/"+created.Data.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/v1/customers/999999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestValidationErrorsMapToBadRequest(t *testing.T) {
	env := setupServer(t)

	rec := doJSON(t, env, http.MethodPost, "/v1/customers", gin.H{"name": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_name", payload.Errors[0].Code)
	assert.Equal(t, "name", payload.Errors[0].Field)
}

func TestInvoiceLifecycleRoutes(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	customer, err := env.customers.Create(ctx, customerdomain.CreateCustomerRequest{
		Name:  "CONSTRUCCIONES DEL SUR S.R.L.",
		TaxID: "4186",
	})
	require.NoError(t, err)

	rec := doJSON(t, env, http.MethodPost, "/v1/invoices", gin.H{
		"customer_id": customer.ID.String(),
		"lines": []gin.H{
			{"description": "Cemento 50kg", "quantity": "2", "unit_price": "100", "tax_rate": 10},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data invoicedomain.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID.String()
	assert.Equal(t, invoicedomain.StatusDraft, created.Data.Status)

	rec = doJSON(t, env, http.MethodPost, "/v1/invoices/"+id+"/issue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var issued struct {
		Data invoicedomain.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, invoicedomain.StatusApproved, issued.Data.Status)
	assert.Equal(t, "0000001", issued.Data.Number)

	// A second issue on an approved document is a state conflict.
	rec = doJSON(t, env, http.MethodPost, "/v1/invoices/"+id+"/issue", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, env, http.MethodGet, "/v1/invoices/"+id+"/artifacts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "signed:"+issued.Data.CDC)

	// Overpayment is refused, a partial payment moves the status.
	rec = doJSON(t, env, http.MethodPost, "/v1/invoices/"+id+"/payments", gin.H{"amount": "10000"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, env, http.MethodPost, "/v1/invoices/"+id+"/payments", gin.H{"amount": "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid struct {
		Data invoicedomain.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paid))
	assert.Equal(t, invoicedomain.StatusPartiallyPaid, paid.Data.Status)
}

func TestReturnRoutes(t *testing.T) {
	env := setupServer(t)
	invoice := approvedInvoice(t, env)
	line := invoice.Lines[0]

	rec := doJSON(t, env, http.MethodPost, "/v1/returns", gin.H{
		"kind":         "GOODS_RETURN",
		"invoice_id":   invoice.ID.String(),
		"requested_by": "mostrador.1",
		"lines": []gin.H{
			{"invoice_line_id": line.ID.String(), "quantity": "1", "condition": "DAMAGED"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data returnsdomain.Return `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID.String()
	assert.Equal(t, returnsdomain.StatusRequested, created.Data.Status)

	// Approving before review is a state conflict.
	rec = doJSON(t, env, http.MethodPost, "/v1/returns/"+id+"/approve", gin.H{"approved_by": "jefe"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, env, http.MethodPost, "/v1/returns/"+id+"/review", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, env, http.MethodPost, "/v1/returns/"+id+"/approve", gin.H{"approved_by": "jefe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var approved struct {
		Data returnsdomain.Return `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	assert.Equal(t, returnsdomain.StatusCompleted, approved.Data.Status)

	rec = doJSON(t, env, http.MethodGet, "/v1/returns/"+id+"/receipts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var receipts struct {
		Data []warehouse.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipts))
	require.Len(t, receipts.Data, 1)
	assert.Equal(t, "DAMAGED", receipts.Data[0].Condition)
}
