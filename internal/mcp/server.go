package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"scholaverse/backend/internal/repository"
	"scholaverse/backend/internal/services"
	"scholaverse/backend/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes the card service over the Model Context Protocol so that
// classroom assistants can trigger and inspect card generation. Tools are
// keyed by student email since MCP clients carry no session cookie.
type Server struct {
	mcpServer   *server.MCPServer
	fulfillment *services.FulfillmentService
	status      *services.StatusService
	repo        repository.Repository
}

func NewServer(fulfillment *services.FulfillmentService, status *services.StatusService, repo repository.Repository) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Scholaverse Cards",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		fulfillment: fulfillment,
		status:      status,
		repo:        repo,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_card",
			mcp.WithDescription("Submit a character card generation request for a student"),
			mcp.WithString("student_email", mcp.Required(), mcp.Description("Email of the registered student")),
		),
		s.handleGenerateCard,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"card_status",
			mcp.WithDescription("Check the generation status of a card"),
			mcp.WithString("student_email", mcp.Required(), mcp.Description("Email of the registered student")),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("The ID of the card")),
		),
		s.handleCardStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_cards",
			mcp.WithDescription("List a student's cards, newest first"),
			mcp.WithString("student_email", mcp.Required(), mcp.Description("Email of the registered student")),
		),
		s.handleListCards,
	)
}

func (s *Server) studentFromArgs(ctx context.Context, args map[string]interface{}) (*models.Student, *mcp.CallToolResult) {
	email, ok := args["student_email"].(string)
	if !ok || email == "" {
		return nil, mcp.NewToolResultError("Missing required parameter: student_email")
	}

	student, err := s.repo.GetStudentByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, mcp.NewToolResultError(fmt.Sprintf("No student registered for %s", email))
	}
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Student lookup failed: %v", err))
	}
	return student, nil
}

func (s *Server) handleGenerateCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	student, errResult := s.studentFromArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	card, err := s.fulfillment.SubmitGeneration(ctx, student)
	if errors.Is(err, services.ErrConfigurationMissing) {
		return mcp.NewToolResultError("Student has no card attributes configured yet"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit generation: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(card)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCardStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	student, errResult := s.studentFromArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	cardID, ok := args["card_id"].(string)
	if !ok || cardID == "" {
		return mcp.NewToolResultError("Missing required parameter: card_id"), nil
	}

	view, err := s.status.GetStatus(ctx, cardID, student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError("Card not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Status lookup failed: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(view)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListCards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	student, errResult := s.studentFromArgs(ctx, args)
	if errResult != nil {
		return errResult, nil
	}

	cards, err := s.repo.ListCards(ctx, student.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list cards: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(cards)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
