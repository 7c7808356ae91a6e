package mocks

//go:generate mockgen -destination=./mock_broker.go -package=mocks github.com/rxtech-lab/argo-strategy-engine/internal/trading/provider Broker
