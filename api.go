package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cast"
	"github.com/twitchtv/twirp"
	"github.com/zyedidia/generic/mapset"
)

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)
	m.Use(handleAuth(s.cfg.Issuer, s.cfg.JWTSecret))

	m.Get("/offers", s.listOffers)
	m.Post("/offers", s.createOffer)
	m.Get("/offers/{offer}", s.getOffer)
	m.Post("/offers/{offer}/fill", s.fillOffer)
	m.Post("/offers/{offer}/cancel", s.cancelOffer)

	m.Get("/balances/{account}", s.getBalance)
	m.Post("/withdrawals", s.withdraw)

	m.Get("/splitter", s.getSplitter)
	m.Post("/splitter/payees", s.addPayee)
	m.Post("/splitter/receipts", s.receivePayment)
	m.Post("/splitter/releases", s.releasePayment)

	m.Get("/events", s.listEvents)

	return m
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, err error) {
	var terr twirp.Error
	if errors.As(err, &terr) {
		_ = twirp.WriteError(w, terr)
		return
	}

	_ = twirp.WriteError(w, twirp.NewError(errCode(err), err.Error()))
}

func errCode(err error) twirp.ErrorCode {
	switch {
	case errors.Is(err, ErrOfferNotFound),
		errors.Is(err, ErrAssetNotFound),
		errors.Is(err, ErrNoShares):
		return twirp.NotFound
	case errors.Is(err, ErrOfferNotOpen),
		errors.Is(err, ErrSelfFill),
		errors.Is(err, ErrNothingToClaim),
		errors.Is(err, ErrNothingDue),
		errors.Is(err, ErrNotCustodian),
		errors.Is(err, ErrFeeExceedsPrice):
		return twirp.FailedPrecondition
	case errors.Is(err, ErrNotOfferOwner),
		errors.Is(err, ErrNotAssetOwner),
		errors.Is(err, ErrUnauthorized):
		return twirp.PermissionDenied
	case errors.Is(err, ErrPriceMismatch),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInvalidShares),
		errors.Is(err, ErrInvalidRate):
		return twirp.InvalidArgument
	case errors.Is(err, ErrDuplicatePayee):
		return twirp.AlreadyExists
	case errors.Is(err, ErrTransferFailed):
		return twirp.Unavailable
	default:
		return twirp.Internal
	}
}

func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := AccountFrom(r.Context())
	if !ok {
		_ = twirp.WriteError(w, twirp.Unauthenticated.Error("unauthenticated"))
		return "", false
	}

	return account, true
}

func (s *Server) createOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	seller, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var body struct {
		AssetID uint64 `json:"asset_id"`
		Price   uint64 `json:"price"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", err.Error()))
		return
	}

	offer, err := s.CreateOffer(ctx, seller, body.AssetID, body.Price)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, offer)
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := s.GetOffer(r.Context(), cast.ToUint64(chi.URLParam(r, "offer")))
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, offer)
}

func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	states := mapset.New[OfferState]()
	for _, v := range strings.Split(q.Get("state"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			states.Put(OfferState(v))
		}
	}

	since := cast.ToUint64(q.Get("offset"))
	limit := cast.ToInt(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offers, err := s.ListOffers(r.Context(), states, since, limit)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, offers)
}

func (s *Server) fillOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyer, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var body struct {
		Deposit uint64 `json:"deposit"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", err.Error()))
		return
	}

	settlement, err := s.FillOffer(ctx, buyer, cast.ToUint64(chi.URLParam(r, "offer")), body.Deposit)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, settlement)
}

func (s *Server) cancelOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := requireAccount(w, r)
	if !ok {
		return
	}

	offer, err := s.CancelOffer(ctx, caller, cast.ToUint64(chi.URLParam(r, "offer")))
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, offer)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if !govalidator.IsUUID(account) {
		renderErr(w, twirp.InvalidArgumentError("account", "invalid account"))
		return
	}

	balance, err := s.GetBalance(r.Context(), account)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, balance)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}

	amount, err := s.Withdraw(ctx, account)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]interface{}{
		"account": account,
		"amount":  amount,
	})
}

func (s *Server) getSplitter(w http.ResponseWriter, r *http.Request) {
	splitter, err := s.SplitterState(r.Context())
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, splitter)
}

func (s *Server) addPayee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var body struct {
		Payee  string `json:"payee"`
		Shares uint64 `json:"shares"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", err.Error()))
		return
	}

	if !govalidator.IsUUID(body.Payee) {
		renderErr(w, twirp.InvalidArgumentError("payee", "invalid account"))
		return
	}

	if err := s.AddSplitterPayee(ctx, caller, body.Payee, body.Shares); err != nil {
		renderErr(w, err)
		return
	}

	splitter, err := s.SplitterState(ctx)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, splitter)
}

func (s *Server) receivePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAccount(w, r); !ok {
		return
	}

	var body struct {
		Amount uint64 `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", err.Error()))
		return
	}

	if err := s.ReceivePayment(ctx, body.Amount); err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]interface{}{
		"amount": body.Amount,
	})
}

func (s *Server) releasePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAccount(w, r); !ok {
		return
	}

	var body struct {
		Payee string `json:"payee"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", err.Error()))
		return
	}

	if !govalidator.IsUUID(body.Payee) {
		renderErr(w, twirp.InvalidArgumentError("payee", "invalid account"))
		return
	}

	amount, err := s.ReleasePayment(ctx, body.Payee)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]interface{}{
		"payee":  body.Payee,
		"amount": amount,
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since := cast.ToUint64(q.Get("offset"))
	limit := cast.ToInt(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	events, err := s.ListEvents(r.Context(), since, limit)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, events)
}
