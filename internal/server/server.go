package server

import (
	"context"
	"net/http"
	"time"

	"github.com/arandulabs/kuatia/internal/config"
	"github.com/arandulabs/kuatia/internal/customer"
	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	"github.com/arandulabs/kuatia/internal/fiscal/document"
	"github.com/arandulabs/kuatia/internal/fiscal/sifen"
	"github.com/arandulabs/kuatia/internal/fiscal/sign"
	"github.com/arandulabs/kuatia/internal/invoice"
	invoicedomain "github.com/arandulabs/kuatia/internal/invoice/domain"
	"github.com/arandulabs/kuatia/internal/observability"
	obsmiddleware "github.com/arandulabs/kuatia/internal/observability/logger"
	obsmetrics "github.com/arandulabs/kuatia/internal/observability/metrics"
	obstracing "github.com/arandulabs/kuatia/internal/observability/tracing"
	"github.com/arandulabs/kuatia/internal/order"
	orderdomain "github.com/arandulabs/kuatia/internal/order/domain"
	"github.com/arandulabs/kuatia/internal/product"
	productdomain "github.com/arandulabs/kuatia/internal/product/domain"
	"github.com/arandulabs/kuatia/internal/returns"
	returnsdomain "github.com/arandulabs/kuatia/internal/returns/domain"
	"github.com/arandulabs/kuatia/internal/sequence"
	"github.com/arandulabs/kuatia/internal/submitlock"
	"github.com/arandulabs/kuatia/internal/warehouse"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	sequence.Module,
	submitlock.Module,
	document.Module,
	sign.Module,
	sifen.Module,
	customer.Module,
	product.Module,
	order.Module,
	warehouse.Module,
	invoice.Module,
	returns.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	invoiceSvc   invoicedomain.Service
	returnSvc    returnsdomain.Service
	customerSvc  customerdomain.Service
	productSvc   productdomain.Service
	orderSvc     orderdomain.Service
	warehouseSvc *warehouse.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	InvoiceSvc   invoicedomain.Service
	ReturnSvc    returnsdomain.Service
	CustomerSvc  customerdomain.Service
	ProductSvc   productdomain.Service
	OrderSvc     orderdomain.Service
	WarehouseSvc *warehouse.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		invoiceSvc:   p.InvoiceSvc,
		returnSvc:    p.ReturnSvc,
		customerSvc:  p.CustomerSvc,
		productSvc:   p.ProductSvc,
		orderSvc:     p.OrderSvc,
		warehouseSvc: p.WarehouseSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Customers --------
	v1.GET("/customers", s.ListCustomers)
	v1.POST("/customers", s.CreateCustomer)
	v1.GET("/customers/:id", s.GetCustomerByID)

	// -------- Products --------
	v1.GET("/products", s.ListProducts)
	v1.POST("/products", s.CreateProduct)
	v1.GET("/products/:id", s.GetProductByID)

	// -------- Orders --------
	v1.GET("/orders", s.ListOrders)
	v1.POST("/orders", s.CreateOrder)
	v1.GET("/orders/:id", s.GetOrderByID)

	// -------- Invoices --------
	v1.GET("/invoices", s.ListInvoices)
	v1.POST("/invoices", s.CreateInvoice)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.GET("/invoices/:id/artifacts", s.GetInvoiceArtifacts)
	v1.POST("/invoices/:id/issue", s.IssueInvoice)
	v1.POST("/invoices/:id/payments", s.RecordInvoicePayment)
	v1.POST("/invoices/:id/void", s.VoidInvoice)
	v1.POST("/invoices/reconcile", s.ReconcileInvoices)

	// -------- Batches --------
	v1.POST("/batches", s.SubmitBatch)
	v1.GET("/batches/:number", s.GetBatchByNumber)

	// -------- Returns --------
	v1.GET("/returns", s.ListReturns)
	v1.POST("/returns", s.CreateReturn)
	v1.GET("/returns/:id", s.GetReturnByID)
	v1.GET("/returns/:id/receipts", s.ListReturnReceipts)
	v1.POST("/returns/:id/review", s.ReviewReturn)
	v1.POST("/returns/:id/approve", s.ApproveReturn)
	v1.POST("/returns/:id/reject", s.RejectReturn)
	v1.POST("/returns/:id/cancel", s.CancelReturn)
}
