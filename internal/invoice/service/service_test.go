package service

import (
	"context"
	"testing"

	"github.com/arandulabs/kuatia/internal/config"
	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	customerrepo "github.com/arandulabs/kuatia/internal/customer/repository"
	customerservice "github.com/arandulabs/kuatia/internal/customer/service"
	"github.com/arandulabs/kuatia/internal/fiscal/document"
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/arandulabs/kuatia/internal/invoice/repository"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	orderrepo "github.com/arandulabs/kuatia/internal/order/repository"
	orderservice "github.com/arandulabs/kuatia/internal/order/service"
	"github.com/arandulabs/kuatia/internal/sequence"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeSigner appends a marker comment instead of a real signature so tests
// can tell signed artifacts from unsigned ones.
type fakeSigner struct{}

func (fakeSigner) Sign(docXML []byte, refID string) ([]byte, error) {
	return append(docXML, []byte("<!--signed:"+refID+"-->")...), nil
}

// fakeAuthority returns canned responses; the zero value approves everything
// synchronously and reports batches as still in process.
type fakeAuthority struct {
	submitResp  *sifen.Response
	batchResp   *sifen.BatchResponse
	statusResp  *sifen.StatusResponse
	batchStatus *sifen.BatchStatusResponse

	submitted [][]byte
	queried   []string
}

func approvedResponse() *sifen.Response {
	return &sifen.Response{Code: "0260", Message: "Autorizado el DE", Protocol: "76200001"}
}

func (f *fakeAuthority) Submit(_ context.Context, signedXML []byte) (*sifen.Response, error) {
	f.submitted = append(f.submitted, signedXML)
	if f.submitResp != nil {
		return f.submitResp, nil
	}
	return approvedResponse(), nil
}

func (f *fakeAuthority) SubmitBatch(_ context.Context, docs [][]byte) (*sifen.BatchResponse, error) {
	f.submitted = append(f.submitted, docs...)
	if f.batchResp != nil {
		return f.batchResp, nil
	}
	return &sifen.BatchResponse{Code: "0300", Message: "Lote recibido", BatchNumber: "7000001"}, nil
}

func (f *fakeAuthority) QueryByCDC(_ context.Context, cdc string) (*sifen.StatusResponse, error) {
	f.queried = append(f.queried, cdc)
	if f.statusResp != nil {
		return f.statusResp, nil
	}
	return &sifen.StatusResponse{Code: "0260", Message: "Autorizado el DE", Status: "Aprobado", Protocol: "76200001"}, nil
}

func (f *fakeAuthority) QueryBatch(_ context.Context, _ string) (*sifen.BatchStatusResponse, error) {
	if f.batchStatus != nil {
		return f.batchStatus, nil
	}
	return &sifen.BatchStatusResponse{Code: "0361", Message: "En proceso", InProcess: true}, nil
}

type testEnv struct {
	svc       domain.Service
	db        *gorm.DB
	authority *fakeAuthority
	customers customerdomain.Service
	orders    orderdomain.Service
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Invoice{}, &domain.InvoiceLine{}, &domain.Batch{},
		&sequence.Sequence{},
		&customerdomain.Customer{},
		&orderdomain.Order{}, &orderdomain.OrderLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	cfg := config.Config{
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
	orders := orderservice.New(orderservice.Params{
		DB: db, Log: log, GenID: node, Repo: orderrepo.Provide(),
	})

	authority := &fakeAuthority{}
	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Config:    cfg,
		Repo:      repository.Provide(),
		Allocator: sequence.NewAllocator(db),
		Builder:   document.NewBuilder(cfg),
		Signer:    fakeSigner{},
		Authority: authority,
		Orders:    orders,
		Customers: customers,
	})

	return &testEnv{
		svc:       svc,
		db:        db,
		authority: authority,
		customers: customers,
		orders:    orders,
	}
}

func createCustomer(t *testing.T, env *testEnv) customerdomain.Customer {
	t.Helper()
	customer, err := env.customers.Create(context.Background(), customerdomain.CreateCustomerRequest{
		Name:    "CONSTRUCCIONES DEL SUR S.R.L.",
		TaxID:   "4186",
		Address: "Ruta Transchaco km 14",
		City:    "Mariano Roque Alonso",
		Email:   "compras@construsur.com.py",
	})
	require.NoError(t, err)
	return customer
}

// draftInvoice creates the reference two-line draft: 2 x 100 at 10% plus
// 1 x 50 at 5%, totalling 272.5.
func draftInvoice(t *testing.T, env *testEnv) domain.Invoice {
	t.Helper()
	customer := createCustomer(t, env)
	invoice, err := env.svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Lines: []domain.CreateInvoiceLine{
			{Description: "Cemento 50kg", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(100), TaxRate: 10},
			{Description: "Arena lavada m3", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50), TaxRate: 5},
		},
	})
	require.NoError(t, err)
	return invoice
}

func approvedInvoice(t *testing.T, env *testEnv) domain.Invoice {
	t.Helper()
	draft := draftInvoice(t, env)
	invoice, err := env.svc.Issue(context.Background(), domain.IssueInvoiceRequest{ID: draft.ID.String()})
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, invoice.Status)
	return invoice
}

func reload(t *testing.T, env *testEnv, id snowflake.ID) domain.Invoice {
	t.Helper()
	invoice, err := env.svc.GetByID(context.Background(), domain.GetInvoiceRequest{ID: id.String()})
	require.NoError(t, err)
	return invoice
}
