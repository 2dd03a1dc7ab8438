package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tutorhive/tutorhive/adapter/cli"
	"github.com/tutorhive/tutorhive/internal/booking/application/queries"
)

var statusCmd = &cobra.Command{
	Use:   "status [booking-id]",
	Short: "Show booking and payment state",
	Long: `Show the full lifecycle state of a booking, including its payment
status, refund history, and any review flag left by reconciliation.

Examples:
  tutorhive booking status 7c9e6679-7425-40de-944b-e07fc1f90ae7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.GetBookingHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Booking lookups require a database connection.")
			return nil
		}

		bookingID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid booking id: %w", err)
		}

		dto, err := app.GetBookingHandler.Handle(cmd.Context(), queries.GetBookingQuery{
			BookingID: bookingID,
			Admin:     true,
		})
		if err != nil {
			return fmt.Errorf("failed to get booking: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Booking %s\n", dto.ID)
		fmt.Fprintf(out, "  Student:    %s\n", dto.StudentID)
		fmt.Fprintf(out, "  Instructor: %s\n", dto.InstructorID)
		fmt.Fprintf(out, "  Scheduled:  %s\n", dto.ScheduledAt.Format(time.RFC3339))
		fmt.Fprintf(out, "  Price:      %d %s\n", dto.AmountMinor, dto.Currency)
		fmt.Fprintf(out, "  Status:     %s (payment %s)\n", dto.Status, dto.PaymentStatus)
		if dto.PaymentRef != nil {
			fmt.Fprintf(out, "  Payment ref: %s\n", *dto.PaymentRef)
		}
		if dto.TransferID != nil {
			fmt.Fprintf(out, "  Transfer:    %s\n", *dto.TransferID)
		}
		if dto.CancelledAt != nil {
			fmt.Fprintf(out, "  Cancelled:   %s by %s (%s)\n",
				dto.CancelledAt.Format(time.RFC3339), dto.CancelledBy, dto.CancellationReason)
		}
		if dto.RefundAttempted {
			fmt.Fprintln(out, "  Refund attempted")
		}
		if dto.ReviewReason != nil {
			fmt.Fprintf(out, "  NEEDS REVIEW: %s\n", *dto.ReviewReason)
		}

		return nil
	},
}
