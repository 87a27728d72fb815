package handlers

import (
	"errors"
	"log/slog"
	"time"

	webmodels "github.com/bidhouse/server/backend/models"
	"github.com/bidhouse/server/backend/utils"
	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/gofiber/fiber/v2"
)

// WebApp represents the web application with all dependencies
type WebApp struct {
	Manager *auction.Manager
	Version string
	Commit  string
	Now     func() time.Time
}

func (w *WebApp) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func HealthCheck(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := webmodels.NewHealthCheck(webApp.Version, webApp.Commit)
		if err := webApp.Manager.Store().Ping(c.Context()); err != nil {
			health.AddComponent("store", "unhealthy", err.Error())
			resp := webmodels.NewErrorResponse("STORE_UNAVAILABLE", "Store unavailable", map[string]string{"store": err.Error()})
			resp.Data = health
			return utils.SendJSON(c, fiber.StatusServiceUnavailable, resp)
		}
		health.AddComponent("store", "healthy", "")
		return utils.SendSuccess(c, health, "Health check successful")
	}
}

func ListingStatus(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		listingID, err := utils.ParseID(c, "id")
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		status, err := webApp.Manager.GetListingStatus(c.Context(), listingID)
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, status, "")
	}
}

func ListingBids(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		listingID, err := utils.ParseID(c, "id")
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		bids, err := webApp.Manager.BidHistory(c.Context(), listingID, utils.QueryLimit(c))
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, bids, "")
	}
}

func PlaceBid(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		listingID, err := utils.ParseID(c, "id")
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}
		bidderID, _ := utils.CurrentUserID(c)

		var req webmodels.PlaceBidRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		result, err := webApp.Manager.PlaceBid(c.Context(), listingID, bidderID, req.Amount)
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, result, "Bid placed")
	}
}

func SetAutoBid(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		listingID, err := utils.ParseID(c, "id")
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}
		bidderID, _ := utils.CurrentUserID(c)

		var req webmodels.AutoBidRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		ack, err := webApp.Manager.SetAutoBidCeiling(c.Context(), listingID, bidderID, req.MaxAmount)
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, ack, "Auto-bid set")
	}
}

func CreateListing(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sellerID, _ := utils.CurrentUserID(c)

		var req webmodels.CreateListingRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}
		if err := req.Validate(); err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		listing, err := webApp.Manager.CreateListing(c.Context(), auction.NewListing{
			SellerID:     sellerID,
			Title:        req.Title,
			Kind:         models.ListingKind(req.Kind),
			StartPrice:   req.StartPrice,
			MinIncrement: req.MinIncrement,
			EndTime:      req.ResolveEndTime(webApp.now()),
		})
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendCreated(c, listing, "Listing created")
	}
}

func CreateAccount(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req webmodels.CreateAccountRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		account, err := webApp.Manager.CreateAccount(c.Context(), req.Username)
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendCreated(c, account, "Account created")
	}
}

func GetAccount(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := utils.ParseID(c, "id")
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		account, err := webApp.Manager.Account(c.Context(), accountID)
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, webmodels.NewAccountResponse(account), "")
	}
}

func Deposit(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := utils.ParseID(c, "id")
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}

		var req webmodels.DepositRequest
		if err := c.BodyParser(&req); err != nil {
			return utils.SendBadRequest(c, "Invalid request body", nil)
		}

		account, err := webApp.Manager.Deposit(c.Context(), accountID, req.Amount)
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, webmodels.NewAccountResponse(account), "Deposit completed")
	}
}

func Sweep(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := webApp.Manager.SweepExpiredAuctions(c.Context())
		if err != nil {
			slog.Warn("Sweep finished with failures",
				slog.String("type", "sys"),
				slog.String("error", err.Error()))
		}
		return utils.SendSuccess(c, webmodels.SweepResult{
			CountSettled: report.Settled(),
			Ended:        report.Ended,
			Sold:         report.Sold,
			Failed:       report.Failed,
		}, "Sweep completed")
	}
}

func Activities(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		activities, err := webApp.Manager.RecentActivities(c.Context(), utils.QueryLimit(c))
		if err != nil {
			return sendEngineError(c, err)
		}
		return utils.SendSuccess(c, activities, "")
	}
}

// sendEngineError maps engine errors onto HTTP statuses.
func sendEngineError(c *fiber.Ctx, err error) error {
	var tooLow *auction.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		return utils.SendUnprocessableEntity(c, "BID_TOO_LOW", err.Error(),
			map[string]string{"minimum": tooLow.Minimum.StringFixed(2)})
	case errors.Is(err, auction.ErrInvalidInput):
		return utils.SendBadRequest(c, err.Error(), nil)
	case errors.Is(err, auction.ErrListingNotFound), errors.Is(err, auction.ErrAccountNotFound):
		return utils.SendNotFound(c, err.Error())
	case errors.Is(err, auction.ErrWrongKind):
		return utils.SendUnprocessableEntity(c, "WRONG_KIND", err.Error(), nil)
	case errors.Is(err, auction.ErrAuctionClosed):
		return utils.SendUnprocessableEntity(c, "AUCTION_CLOSED", err.Error(), nil)
	case errors.Is(err, auction.ErrSelfBid):
		return utils.SendUnprocessableEntity(c, "SELF_BID", err.Error(), nil)
	case errors.Is(err, auction.ErrInsufficientFunds):
		return utils.SendConflict(c, "INSUFFICIENT_FUNDS", "Insufficient funds")
	}

	slog.Error("Engine request failed",
		slog.String("type", "api"),
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.String("error", err.Error()))
	return utils.SendInternalServerError(c, "Internal server error")
}
