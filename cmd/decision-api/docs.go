package main

//go:generate swag init -g cmd/decision-api/main.go -o docs

// @title           Credit Policy Decision API
// @version         0.1.0
// @description     PD scoring and APPROVE/REVIEW/REJECT decisions from the deployed threshold policy.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
