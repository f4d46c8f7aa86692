package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrMealNotFound is returned by a MealCatalog for an unknown meal id.
var ErrMealNotFound = errors.New("meal not found")

// Meal is the catalog view of a meal used to price an order.
type Meal struct {
	ID       string  `json:"id"`
	Name     string  `json:"mealName"`
	Price    float64 `json:"price"`
	ChefID   string  `json:"chefId"`
	ChefName string  `json:"chefName"`
}

// MealCatalog looks up the authoritative meal record.
type MealCatalog interface {
	FetchMeal(ctx context.Context, mealID string) (*Meal, error)
}

// HTTPMealCatalog reads meals from the catalog service.
type HTTPMealCatalog struct {
	baseURL string
	client  *http.Client
}

func NewHTTPMealCatalog(baseURL string) *HTTPMealCatalog {
	return &HTTPMealCatalog{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPMealCatalog) FetchMeal(ctx context.Context, mealID string) (*Meal, error) {
	endpoint := fmt.Sprintf("%s/meals/%s", c.baseURL, url.PathEscape(mealID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMealNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meal service returned %d", resp.StatusCode)
	}

	var meal Meal
	if err := json.NewDecoder(resp.Body).Decode(&meal); err != nil {
		return nil, err
	}
	return &meal, nil
}
