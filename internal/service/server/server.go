package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"drchat/internal/cryptographic/dh"
	"drchat/internal/model"
	"drchat/internal/utils/log"
)

var ErrDuplicatedUser = errors.New("user already connected")

type (
	// UserStore looks up registered users. nil, nil means not found.
	UserStore interface {
		GetByName(ctx context.Context, name string) (*model.User, error)
	}

	// Queue holds frames for users that are offline.
	Queue interface {
		RPush(ctx context.Context, key string, value ...any) error
		Drain(ctx context.Context, key string) ([]string, error)
	}

	peer struct {
		wmu  sync.Mutex
		conn *websocket.Conn
	}

	HttpServer struct {
		addr      string
		rateLimit int

		mu     sync.RWMutex
		mapper map[string]*peer

		userRepo UserStore
		queue    Queue

		srv *http.Server
	}
)

func NewHttpServer(addr string, rateLimit int, userRepo UserStore, queue Queue) *HttpServer {
	return &HttpServer{
		addr:      addr,
		rateLimit: rateLimit,
		mapper:    make(map[string]*peer),
		userRepo:  userRepo,
		queue:     queue,
	}
}

func (p *peer) write(data []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/init", s.HandleInitWS()).Methods(http.MethodGet)
	r.HandleFunc("/keys/{name}", s.GetSharedKeysOfUser()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled.
func (s *HttpServer) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", zap.String("addr", s.addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	s.closeAll()
	return err
}

func (s *HttpServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, p := range s.mapper {
		p.conn.Close()
		delete(s.mapper, name)
	}
}

func (s *HttpServer) register(userID string, conn *websocket.Conn) (*peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mapper[userID]; ok {
		return nil, ErrDuplicatedUser
	}
	p := &peer{conn: conn}
	s.mapper[userID] = p
	return p, nil
}

func (s *HttpServer) unregister(userID string, p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapper[userID] == p {
		delete(s.mapper, userID)
	}
}

func (s *HttpServer) lookup(userID string) (*peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.mapper[userID]
	return p, ok
}

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userID")
		if userID == "" {
			http.Error(w, "userID cannot be empty", http.StatusBadRequest)
			return
		}

		if _, ok := s.lookup(userID); ok {
			http.Error(w, "duplicated userID", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.String("user", userID), zap.Error(err))
			return
		}

		p, err := s.register(userID, conn)
		if err != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			conn.Close()
			return
		}

		log.Info("user connected", zap.String("user", userID))
		if err := s.ForwardUnsentMessages(context.Background(), userID, p); err != nil {
			log.Error("forward msg failed", zap.String("user", userID), zap.Error(err))
		}
		go s.processWSMessage(userID, p)
	}
}

func (s *HttpServer) processWSMessage(userID string, p *peer) {
	defer func() {
		s.unregister(userID, p)
		p.conn.Close()
		log.Info("user disconnected", zap.String("user", userID))
	}()

	limiter := ratelimit.New(s.rateLimit)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			log.Debug("web socket closed", zap.String("user", userID), zap.Error(err))
			return
		}
		limiter.Take()

		var message model.Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.Error("unmarshal message failed", zap.String("user", userID), zap.Error(err))
			continue
		}
		if message.From != userID || message.To == "" || len(message.Header) == 0 {
			log.Warn("dropping malformed frame", zap.String("user", userID), zap.String("to", message.To))
			continue
		}

		if err := s.route(context.Background(), &message, data); err != nil {
			log.Error("route message failed", zap.String("from", userID), zap.String("to", message.To), zap.Error(err))
		}
	}
}

// route delivers data to the recipient if connected and queues it otherwise.
func (s *HttpServer) route(ctx context.Context, message *model.Message, data []byte) error {
	if dst, ok := s.lookup(message.To); ok {
		err := dst.write(data)
		if err == nil {
			return nil
		}
		log.Debug("live delivery failed, queueing", zap.String("to", message.To), zap.Error(err))
	}
	return s.PutMessagesToCache(ctx, message.To, []*model.Message{message})
}

func (s *HttpServer) GetSharedKeysOfUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		name := mux.Vars(r)["name"]
		log.Info("GetSharedKeysOfUser", zap.String("name", name))

		sharedKeys, err := s.sharedKeys(ctx, name)
		if err != nil {
			log.Error("get shared keys failed", zap.String("name", name), zap.Error(err))
			http.Error(w, "get shared keys failed", http.StatusInternalServerError)
			return
		}
		if sharedKeys == nil {
			http.Error(w, "user does not exist", http.StatusNotFound)
			return
		}

		data, err := json.Marshal(sharedKeys)
		if err != nil {
			log.Error("get shared keys failed", zap.Error(err))
			http.Error(w, "get shared keys failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// sharedKeys builds the public bundle of name. The prekey signature is served
// as the client stored it.
func (s *HttpServer) sharedKeys(ctx context.Context, name string) (*model.SharedKey, error) {
	user, err := s.userRepo.GetByName(ctx, name)
	if err != nil || user == nil {
		return nil, err
	}

	ikPriv, err := dh.ConvertToECDHFormat(user.IKPriv)
	if err != nil {
		return nil, fmt.Errorf("identity key: %w", err)
	}

	spkPriv, err := dh.ConvertToECDHFormat(user.SPKPriv)
	if err != nil {
		return nil, fmt.Errorf("signed prekey: %w", err)
	}

	return &model.SharedKey{
		IKPub:     ikPriv.PublicKey().Bytes(),
		SPKPub:    spkPriv.PublicKey().Bytes(),
		SigPub:    user.SigPub,
		Signature: user.SPKSig,
	}, nil
}

func (s *HttpServer) ForwardUnsentMessages(ctx context.Context, userID string, p *peer) error {
	frames, err := s.GetMessagesFromCache(ctx, userID)
	if err != nil {
		return err
	}

	for i, data := range frames {
		if err := p.write(data); err != nil {
			// Put back what was not delivered.
			var rest []*model.Message
			for _, d := range frames[i:] {
				var m model.Message
				if json.Unmarshal(d, &m) == nil {
					rest = append(rest, &m)
				}
			}
			if qerr := s.PutMessagesToCache(ctx, userID, rest); qerr != nil {
				log.Error("requeue failed", zap.String("user", userID), zap.Error(qerr))
			}
			return err
		}
	}
	if len(frames) > 0 {
		log.Info("forwarded queued messages", zap.String("user", userID), zap.Int("count", len(frames)))
	}
	return nil
}
