package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/repository"
	"github.com/farmlink/orders-api/services"
	"github.com/farmlink/orders-api/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiFixture struct {
	db       *gorm.DB
	gateway  *services.MockPaymentGateway
	consumer models.User
	farmer   models.User
	product  models.Product
}

func setupAPI(t *testing.T) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	config.SetDB(db)
	config.SetConfig(&config.Config{GoEnv: "test", StripeCurrency: "usd"})

	gateway := services.NewMockPaymentGateway()
	services.SetOrderService(services.NewOrderService(
		repository.NewOrderRepository(db),
		repository.NewProductRepository(db),
		gateway,
		services.OrderServiceOptions{Currency: "usd", GatewayTimeout: 2 * time.Second, EventsExchange: "farmlink.orders"},
	))
	t.Cleanup(func() { services.SetOrderService(nil) })

	farmer := testutil.CreateUser(t, db, "auth0|farmer", models.RoleFarmer)
	return apiFixture{
		db:       db,
		gateway:  gateway,
		consumer: testutil.CreateUser(t, db, "auth0|consumer", models.RoleConsumer),
		farmer:   farmer,
		product:  testutil.CreateProduct(t, db, farmer.ID, "12.50", 20),
	}
}

// serve runs a single request through a router with handler mounted at route,
// authenticated as auth0ID unless it is empty.
func serve(t *testing.T, method, route, path string, handler gin.HandlerFunc, auth0ID, role string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	router := gin.New()
	if auth0ID != "" {
		router.Handle(method, route, testutil.MockAuthMiddleware(auth0ID, role), handler)
	} else {
		router.Handle(method, route, handler)
	}

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}

func errorCode(response map[string]interface{}) string {
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}

func (f apiFixture) orderBody() map[string]interface{} {
	return map[string]interface{}{
		"productId":  f.product.ID,
		"farmerId":   f.farmer.ID,
		"quantity":   2,
		"totalPrice": "25.00",
		"consumerDetails": map[string]interface{}{
			"fullName": "Asha Patel",
			"phone":    "+91-9000000000",
			"address":  "12 Market Road, Pune",
		},
	}
}

func (f apiFixture) placeOrder(t *testing.T) string {
	t.Helper()

	w, response := serve(t, http.MethodPost, "/api/orders", "/api/orders", CreateOrder, f.consumer.Auth0ID, models.RoleConsumer, f.orderBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return response["data"].(map[string]interface{})["id"].(string)
}

func (f apiFixture) reloadOrder(t *testing.T, id string) models.Order {
	t.Helper()

	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return order
}

func serveRouter(t *testing.T, router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}
